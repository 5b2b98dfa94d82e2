// File: selector/fanout_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// White-box tests for the fan-out machinery: slice layout, helper pool
// sizing, sentinel collapse, and result-set processing. They run with a
// reduced per-slice ceiling; the slice arithmetic does not depend on the
// ceiling's value.

package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fanpoll/api"
	"github.com/momentics/fanpoll/channel"
	"github.com/momentics/fanpoll/internal/syspoll"
)

const testMaxFDs = 4

func openFanoutSelector(t *testing.T, pipes int) (*Selector, []*channel.Pipe, []*SelectionKey) {
	t.Helper()
	s, err := Open(withMaxFDs(testMaxFDs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ps := make([]*channel.Pipe, pipes)
	ks := make([]*SelectionKey, pipes)
	for i := range ps {
		p, err := channel.NewPipe()
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })
		ps[i] = p
		k, err := s.Register(p.Source(), api.OpRead, i)
		require.NoError(t, err)
		ks[i] = k
	}
	return s, ps, ks
}

func TestFanOutSliceLayout(t *testing.T) {
	// Nine registrations with a slice size of four cross two boundaries,
	// mirroring 2000 channels against the real 1024 ceiling.
	s, _, ks := openFanoutSelector(t, 9)

	assert.Equal(t, 2, s.helperCount)
	// 1 wakeup sentinel per slice + 9 keys.
	assert.Equal(t, int32(12), s.totalChannels.Load())

	// Every slice starts with the wakeup sentinel; no key sits on a
	// boundary slot.
	for i := 0; i < int(s.totalChannels.Load()); i += testMaxFDs {
		assert.Nil(t, s.channelArray[i])
		assert.Equal(t, s.wakeupSourceFD, s.pollArray.FD(i))
		assert.Equal(t, syspoll.Pollin, s.pollArray.EventOps(i))
	}

	// Index integrity over the whole table.
	for _, k := range ks {
		require.GreaterOrEqual(t, k.Index(), 0)
		assert.Same(t, k, s.channelArray[k.Index()])
	}

	// Workers spawn at the first round.
	assert.Empty(t, s.workers)
	_, err := s.SelectNow()
	require.NoError(t, err)
	assert.Len(t, s.workers, 2)
}

func TestFanOutReadinessInHelperSlice(t *testing.T) {
	s, ps, ks := openFanoutSelector(t, 9)

	// The last registration lands in the third slice, owned by helper 1.
	target := 8
	require.Greater(t, ks[target].Index(), 2*testMaxFDs)

	_, err := ps[target].Sink().Write([]byte{1})
	require.NoError(t, err)

	n, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	selected := s.SelectedKeys().Keys()
	require.Len(t, selected, 1)
	assert.Same(t, ks[target], selected[0])
	readable, err := ks[target].IsReadable()
	require.NoError(t, err)
	assert.True(t, readable)
}

func TestFanOutMergeAcrossSlices(t *testing.T) {
	s, ps, _ := openFanoutSelector(t, 9)

	// One readable channel per slice: the merged count equals the union of
	// the per-slice results, nothing counted twice.
	for _, i := range []int{0, 4, 8} {
		_, err := ps[i].Sink().Write([]byte{1})
		require.NoError(t, err)
	}
	n, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.SelectedKeys().Len())

	// The same readiness reported again is not a new update.
	n, err = s.SelectNow()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, s.SelectedKeys().Len())
}

func TestSentinelCollapseRetiresHelper(t *testing.T) {
	s, _, ks := openFanoutSelector(t, 9)

	_, err := s.SelectNow()
	require.NoError(t, err)
	require.Len(t, s.workers, 2)

	// Empty the third slice: its sentinel collapses with the last key.
	for _, k := range ks[6:] {
		k.Cancel()
	}
	_, err = s.SelectNow()
	require.NoError(t, err)

	// Six keys and two sentinels remain.
	assert.Equal(t, 1, s.helperCount)
	assert.Equal(t, int32(8), s.totalChannels.Load())

	// The round that drained the cancellations already zombied the surplus
	// worker; a further round keeps the pool at one.
	_, err = s.SelectNow()
	require.NoError(t, err)
	assert.Len(t, s.workers, 1)

	for _, k := range ks[:6] {
		require.GreaterOrEqual(t, k.Index(), 0)
		assert.Same(t, k, s.channelArray[k.Index()])
	}
}

func TestProcessFDSetCountsKeyOncePerRound(t *testing.T) {
	s, ps, k := singleKeySelector(t)
	fd := int32(ps.Source().FDVal())

	s.updateCount++
	uc := s.updateCount

	// The descriptor surfaces in the read set and again in the except set
	// within the same round: one update, set-then-merge semantics.
	n := s.main.processFDSet(uc, []int32{1, fd}, syspoll.Pollin, false)
	assert.Equal(t, 1, n)
	n = s.main.processFDSet(uc, []int32{1, fd},
		syspoll.Pollin|syspoll.Pollconn|syspoll.Pollout, true)
	assert.Equal(t, 0, n)

	assert.True(t, s.selected.Contains(k))
	assert.Equal(t, api.OpRead, k.ReadyBits())
}

func TestProcessFDSetExceptMergesForNonSockets(t *testing.T) {
	// A non-socket descriptor in the except set skips the urgent-data
	// discard and still merges readiness into the key.
	s, ps, k := singleKeySelector(t)
	fd := int32(ps.Source().FDVal())

	s.updateCount++
	n := s.main.processFDSet(s.updateCount, []int32{1, fd},
		syspoll.Pollin|syspoll.Pollconn|syspoll.Pollout, true)
	assert.Equal(t, 1, n)
	assert.True(t, s.selected.Contains(k))
	assert.Equal(t, api.OpRead, k.ReadyBits())
}

func TestProcessFDSetFiltersWakeupDescriptor(t *testing.T) {
	s, _, _ := singleKeySelector(t)

	s.updateCount++
	n := s.main.processFDSet(s.updateCount,
		[]int32{1, int32(s.wakeupSourceFD)}, syspoll.Pollin, false)
	assert.Equal(t, 0, n)
	assert.Zero(t, s.selected.Len())

	s.interruptMu.Lock()
	triggered := s.interruptTriggered
	s.interruptTriggered = false
	s.interruptMu.Unlock()
	assert.True(t, triggered)
}

func TestProcessFDSetSkipsDeregisteredDescriptor(t *testing.T) {
	s, ps, k := singleKeySelector(t)
	fd := int32(ps.Source().FDVal())

	k.Cancel()
	s.processDeregisterQueue()

	s.updateCount++
	n := s.main.processFDSet(s.updateCount, []int32{1, fd}, syspoll.Pollin, false)
	assert.Equal(t, 0, n)
	assert.Zero(t, s.selected.Len())
}

func singleKeySelector(t *testing.T) (*Selector, *channel.Pipe, *SelectionKey) {
	t.Helper()
	s, err := Open(withMaxFDs(testMaxFDs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p, err := channel.NewPipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	k, err := s.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)
	return s, p, k
}
