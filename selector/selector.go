// File: selector/selector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The multiplexer. Owns the channel table, the fd map, the poll array, the
// wakeup pipe, the main sub-selector and the helper worker pool. Mutations
// of the table and the poll array are serialized on closeMu; the wakeup
// flag lives behind the leaf lock interruptMu; select rounds themselves are
// serialized on selectMu.

package selector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/fanpoll/api"
	"github.com/momentics/fanpoll/channel"
	"github.com/momentics/fanpoll/control"
	"github.com/momentics/fanpoll/internal/syspoll"
)

// MaxSelectableFDs is the per-slice descriptor ceiling: one native poll
// call never covers more than this many descriptors, so every further
// slice of the channel table gets its own helper worker.
const MaxSelectableFDs = syspoll.FDSetSize

// InitCap is the initial capacity of the channel table and poll array.
const InitCap = syspoll.InitCap

// Selector is a multi-threaded fan-out readiness multiplexer.
type Selector struct {
	id      string
	log     *zap.Logger
	metrics *control.MetricsRegistry
	probes  *control.ProbeRegistry

	// selectMu serializes select rounds; one goroutine selects at a time.
	selectMu sync.Mutex

	// closeMu guards the channel table, the poll array, the fd map writes,
	// the helper bookkeeping and the closed flag.
	closeMu       sync.Mutex
	closed        bool
	maxFDs        int
	channelArray  []*SelectionKey
	pollArray     *syspoll.PollArray
	totalChannels atomic.Int32
	helperCount   int
	workers       []*selectWorker

	fdMap *fdMap

	keysMu sync.Mutex
	keys   map[*SelectionKey]struct{}

	selected *KeySet

	cancelledMu sync.Mutex
	cancelled   *queue.Queue

	wakeupPipe     *channel.Pipe
	wakeupSourceFD int
	wakeupSinkFD   int

	// interruptMu is a leaf lock, never held across anything else.
	interruptMu        sync.Mutex
	interruptTriggered bool

	start  startLock
	finish finishLock

	main *subSelector

	// timeout of the round in flight, in milliseconds; -1 blocks. Written
	// before the start barrier releases, read by helpers after it.
	timeout int64

	updateCount uint64
	rounds      atomic.Int64
}

// Open creates a selector: a fresh poll array with the wakeup sentinel at
// slot zero, the wakeup pipe, and the main sub-selector. Helper workers
// spawn lazily as the population crosses slice boundaries.
func Open(opts ...Option) (*Selector, error) {
	s := &Selector{
		id:     uuid.NewString(),
		log:    zap.NewNop(),
		maxFDs: MaxSelectableFDs,
		fdMap:  newFDMap(),
		keys:   make(map[*SelectionKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.selected = newKeySet()
	s.cancelled = queue.New()
	s.start.init()
	s.finish.init(s)

	pipe, err := channel.NewPipe()
	if err != nil {
		return nil, err
	}
	s.wakeupPipe = pipe
	s.wakeupSourceFD = pipe.Source().FDVal()
	s.wakeupSinkFD = pipe.Sink().FDVal()

	s.pollArray = syspoll.NewPollArray(InitCap)
	s.channelArray = make([]*SelectionKey, InitCap)
	s.pollArray.AddWakeupEntry(s.wakeupSourceFD, 0)
	s.totalChannels.Store(1)

	s.main = newSubSelector(s, 0)

	if s.probes != nil {
		s.probes.Register(s.id, s.probeState)
	}
	s.log.Debug("selector open", zap.String("selector", s.id))
	return s, nil
}

// ID returns the selector's instance identifier.
func (s *Selector) ID() string { return s.id }

// IsOpen reports whether the selector has not been closed yet.
func (s *Selector) IsOpen() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return !s.closed
}

// Register binds ch to this selector with the given interest set and
// optional attachment. Deregistration of a recycled descriptor always runs
// before a new registration can observe it: both paths serialize on
// closeMu, which is what defends fd-reuse races within one process.
func (s *Selector) Register(ch api.SelectableChannel, ops int, attachment any) (*SelectionKey, error) {
	if ch == nil {
		return nil, api.ErrIllegalArgument
	}
	if !ch.IsOpen() {
		return nil, api.ErrClosedChannel
	}
	if ops&^ch.ValidOps() != 0 {
		return nil, api.ErrIllegalArgument
	}

	k := &SelectionKey{channel: ch, selector: s}
	k.valid.Store(true)
	k.index.Store(-1)
	if attachment != nil {
		k.Attach(attachment)
	}

	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil, api.ErrClosedSelector
	}
	s.growIfNeeded()
	idx := int(s.totalChannels.Load())
	s.channelArray[idx] = k
	k.index.Store(int32(idx))
	s.fdMap.put(k)
	s.pollArray.AddEntry(idx, ch.FDVal())
	s.totalChannels.Add(1)
	s.closeMu.Unlock()

	s.keysMu.Lock()
	s.keys[k] = struct{}{}
	s.keysMu.Unlock()

	ch.TrackRegistration(1)
	k.removeCloseHook = ch.OnClose(k.Cancel)

	if err := k.SetInterestOps(ops); err != nil {
		k.Cancel()
		return nil, err
	}
	return k, nil
}

// growIfNeeded doubles the table and poll array when full, and opens a new
// helper slice whenever the population lands on a slice boundary: the slot
// at every multiple of maxFDs is a sticky wakeup sentinel, never a key.
// Caller holds closeMu.
func (s *Selector) growIfNeeded() {
	total := int(s.totalChannels.Load())
	if len(s.channelArray) == total {
		newSize := total * 2
		grown := make([]*SelectionKey, newSize)
		copy(grown, s.channelArray)
		s.channelArray = grown
		s.pollArray.Grow(newSize)
	}
	if total%s.maxFDs == 0 {
		s.pollArray.AddWakeupEntry(s.wakeupSourceFD, total)
		s.totalChannels.Add(1)
		s.helperCount++
	}
}

// cancel enqueues k for deregistration at the next round boundary.
func (s *Selector) cancel(k *SelectionKey) {
	s.cancelledMu.Lock()
	s.cancelled.Add(k)
	s.cancelledMu.Unlock()
}

// putEventOps pushes translated interest bits into k's poll-array slot.
func (s *Selector) putEventOps(k *SelectionKey, events uint16) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return api.ErrClosedSelector
	}
	idx := int(k.index.Load())
	if idx < 0 {
		return api.ErrCancelledKey
	}
	s.pollArray.PutEventOps(idx, events)
	return nil
}

// processDeregisterQueue drains the cancelled queue and deregisters each
// key. Runs at both edges of every round.
func (s *Selector) processDeregisterQueue() {
	s.cancelledMu.Lock()
	var victims []*SelectionKey
	for s.cancelled.Length() > 0 {
		victims = append(victims, s.cancelled.Remove().(*SelectionKey))
	}
	s.cancelledMu.Unlock()
	for _, k := range victims {
		s.implDereg(k)
	}
}

// implDereg removes k from the channel table with swap-with-last
// compaction, collapses a helper slice whose only remaining entry is its
// wakeup sentinel, and unwinds the key from every set. The channel's Kill
// runs once it is closed and registered nowhere.
func (s *Selector) implDereg(k *SelectionKey) {
	s.closeMu.Lock()
	i := int(k.index.Load())
	if i < 0 || s.closed && s.channelArray == nil {
		s.closeMu.Unlock()
		return
	}
	total := int(s.totalChannels.Load())
	if i != total-1 {
		end := s.channelArray[total-1]
		s.channelArray[i] = end
		end.index.Store(int32(i))
		syspoll.ReplaceEntry(s.pollArray, total-1, s.pollArray, i)
	}
	k.index.Store(-1)
	s.channelArray[total-1] = nil
	total--
	s.totalChannels.Store(int32(total))
	if total != 1 && total%s.maxFDs == 1 {
		// Only the slice's wakeup sentinel is left; drop it and retire
		// one helper.
		total--
		s.totalChannels.Store(int32(total))
		s.helperCount--
	}
	s.fdMap.remove(k)
	s.closeMu.Unlock()

	k.invalidate()

	s.keysMu.Lock()
	delete(s.keys, k)
	s.keysMu.Unlock()
	s.selected.Remove(k)

	if k.removeCloseHook != nil {
		k.removeCloseHook()
		k.removeCloseHook = nil
	}
	ch := k.channel
	if ch.TrackRegistration(-1) == 0 && !ch.IsOpen() {
		if err := ch.Kill(); err != nil {
			s.log.Warn("channel kill failed",
				zap.String("selector", s.id), zap.Error(err))
		}
	}
}

// adjustWorkerCount reconciles the live worker pool with the helper count
// implied by the population: spawn what is missing, zombie the surplus.
func (s *Selector) adjustWorkerCount() {
	s.closeMu.Lock()
	want := s.helperCount
	s.closeMu.Unlock()

	if want > len(s.workers) {
		for i := len(s.workers); i < want; i++ {
			w := newSelectWorker(s, i)
			s.workers = append(s.workers, w)
			go w.run()
			s.log.Debug("helper started",
				zap.String("selector", s.id), zap.Int("helper", i))
		}
	} else if want < len(s.workers) {
		for i := len(s.workers) - 1; i >= want; i-- {
			s.workers[i].makeZombie()
			s.workers = s.workers[:i]
		}
	}
}

// Select blocks until at least one registered channel becomes ready for an
// operation in its interest set or Wakeup is called. It takes no interrupt
// slot; SelectWith is the interruptible variant. Returns the number of keys
// whose ready ops changed.
func (s *Selector) Select() (int, error) {
	return s.doSelect(-1, nil)
}

// SelectWith is Select with an interrupt slot: firing ir while the call is
// blocked routes to Wakeup, and the call returns 0 with ir's interrupt
// status still set.
func (s *Selector) SelectWith(ir *channel.Interrupter) (int, error) {
	return s.doSelect(-1, ir)
}

// SelectTimeout blocks for at most d. A zero d means no bound, matching
// Select; a negative d is rejected.
func (s *Selector) SelectTimeout(d time.Duration) (int, error) {
	return s.SelectTimeoutWith(nil, d)
}

// SelectTimeoutWith is SelectTimeout with an interrupt slot.
func (s *Selector) SelectTimeoutWith(ir *channel.Interrupter, d time.Duration) (int, error) {
	if d < 0 {
		return 0, api.ErrIllegalArgument
	}
	if d == 0 {
		return s.doSelect(-1, ir)
	}
	ms := int64(d / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return s.doSelect(ms, ir)
}

// SelectNow performs a non-blocking round.
func (s *Selector) SelectNow() (int, error) {
	return s.doSelect(0, nil)
}

// doSelect runs one complete round.
func (s *Selector) doSelect(timeoutMillis int64, ir *channel.Interrupter) (int, error) {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	if !s.IsOpen() {
		return 0, api.ErrClosedSelector
	}
	s.timeout = timeoutMillis

	s.processDeregisterQueue()

	// A wakeup that landed before this round short-circuits it.
	s.interruptMu.Lock()
	pending := s.interruptTriggered
	s.interruptMu.Unlock()
	if pending {
		s.resetWakeupSocket()
		return 0, nil
	}

	s.adjustWorkerCount()
	s.finish.reset(len(s.workers))
	s.start.startThreads()

	s.beginSelect(ir)
	if err := s.main.poll(); err != nil {
		s.finish.setError(err)
	}
	if len(s.workers) > 0 {
		s.finish.waitForHelperThreads()
	}
	s.endSelect(ir)

	if err := s.finish.checkForError(); err != nil {
		s.log.Warn("poll failed", zap.String("selector", s.id), zap.Error(err))
		return 0, err
	}

	s.processDeregisterQueue()
	updated := s.updateSelectedKeys()
	s.resetWakeupSocket()

	s.rounds.Add(1)
	if s.metrics != nil {
		s.metrics.Add("selector_rounds", 1)
		s.metrics.Add("selector_keys_updated", int64(updated))
		s.metrics.SetGauge("selector_helpers", int64(len(s.workers)))
		s.keysMu.Lock()
		population := len(s.keys)
		s.keysMu.Unlock()
		s.metrics.SetGauge("selector_keys", int64(population))
	}
	return updated, nil
}

// beginSelect arms ir so an interrupt unblocks the native poll through the
// wakeup pipe. An interrupt pending at entry wakes the round immediately.
func (s *Selector) beginSelect(ir *channel.Interrupter) {
	if ir == nil {
		return
	}
	channel.InstallInterruptHook(ir, s.Wakeup)
	if ir.Interrupted() {
		s.Wakeup()
	}
}

func (s *Selector) endSelect(ir *channel.Interrupter) {
	if ir == nil {
		return
	}
	channel.RemoveInterruptHook(ir)
}

// updateSelectedKeys merges every sub-selector's results into the selected
// set, counting each key at most once.
func (s *Selector) updateSelectedKeys() int {
	s.updateCount++
	numKeysUpdated := s.main.processSelectedKeys(s.updateCount)
	for _, w := range s.workers {
		numKeysUpdated += w.sub.processSelectedKeys(s.updateCount)
	}
	return numKeysUpdated
}

// Wakeup makes the in-progress or next select round return immediately.
// Idempotent between rounds: at most one byte sits in the wakeup pipe.
// Callable after Close.
func (s *Selector) Wakeup() {
	s.interruptMu.Lock()
	defer s.interruptMu.Unlock()
	if !s.interruptTriggered {
		if err := syspoll.SetWakeupSocket(s.wakeupSinkFD); err != nil {
			s.log.Warn("wakeup failed", zap.String("selector", s.id), zap.Error(err))
		}
		s.interruptTriggered = true
	}
}

// resetWakeupSocket drains the wakeup pipe and clears the flag.
func (s *Selector) resetWakeupSocket() {
	s.interruptMu.Lock()
	defer s.interruptMu.Unlock()
	if s.interruptTriggered {
		if err := syspoll.ResetWakeupSocket(s.wakeupSourceFD); err != nil {
			s.log.Warn("wakeup drain failed", zap.String("selector", s.id), zap.Error(err))
		}
		s.interruptTriggered = false
	}
}

// Close deregisters every key, releases the poll array and the wakeup
// pipe, and retires every helper. Idempotent; selection and registration
// fail with ErrClosedSelector afterwards.
func (s *Selector) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	// Prevent further wakeup bytes, then close both pipe ends.
	s.interruptMu.Lock()
	s.interruptTriggered = true
	s.interruptMu.Unlock()
	pipeErr := s.wakeupPipe.Close()

	// Deregister every non-sentinel entry. Compaction reshuffles the
	// table, so take the keys one at a time.
	for {
		s.closeMu.Lock()
		var k *SelectionKey
		total := int(s.totalChannels.Load())
		for i := 1; i < total; i++ {
			if i%s.maxFDs != 0 {
				k = s.channelArray[i]
				break
			}
		}
		s.closeMu.Unlock()
		if k == nil {
			break
		}
		k.invalidate()
		s.implDereg(k)
	}

	s.closeMu.Lock()
	s.pollArray.Free()
	s.channelArray = nil
	workers := s.workers
	s.workers = nil
	s.helperCount = 0
	s.closeMu.Unlock()

	s.selected.Clear()

	for _, w := range workers {
		w.makeZombie()
	}
	s.start.startThreads()

	if s.probes != nil {
		s.probes.Unregister(s.id)
	}
	s.log.Debug("selector closed", zap.String("selector", s.id))
	return pipeErr
}

// Keys returns a snapshot of all currently registered keys.
func (s *Selector) Keys() []*SelectionKey {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	out := make([]*SelectionKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// SelectedKeys returns the selected-key set. Applications may remove keys
// from it; only the selector inserts.
func (s *Selector) SelectedKeys() *KeySet {
	return s.selected
}

func (s *Selector) probeState() control.ProbeState {
	s.keysMu.Lock()
	population := len(s.keys)
	s.keysMu.Unlock()
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return control.ProbeState{
		ID:       s.id,
		Open:     !s.closed,
		Keys:     population,
		Helpers:  s.helperCount,
		Channels: int(s.totalChannels.Load()),
		Rounds:   s.rounds.Load(),
	}
}
