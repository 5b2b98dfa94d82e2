// File: selector/key.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SelectionKey is the token binding one channel to one selector. The
// selector owns the key for as long as it is valid; the application mutates
// interest ops and the attachment slot, the selector mutates ready ops and
// the table index.

package selector

import (
	"sync/atomic"

	"github.com/momentics/fanpoll/api"
)

// SelectionKey represents one channel registration.
type SelectionKey struct {
	channel  api.SelectableChannel
	selector *Selector

	interest atomic.Int32
	ready    atomic.Int32
	index    atomic.Int32
	valid    atomic.Bool

	attachment atomic.Pointer[any]

	// removeCloseHook detaches the channel-close hook installed at
	// registration. Set once by Register, called once by implDereg.
	removeCloseHook func()
}

// Channel returns the channel this key represents. Accessible even after
// cancellation.
func (k *SelectionKey) Channel() api.SelectableChannel { return k.channel }

// Selector returns the owning selector. Accessible even after cancellation.
func (k *SelectionKey) Selector() *Selector { return k.selector }

// IsValid reports whether the key still represents a live registration.
// A key never becomes valid again once invalidated.
func (k *SelectionKey) IsValid() bool { return k.valid.Load() }

// Cancel schedules this key for deregistration at the next select round.
// Idempotent; the key is invalid as soon as Cancel returns.
func (k *SelectionKey) Cancel() {
	if k.valid.CompareAndSwap(true, false) {
		k.selector.cancel(k)
	}
}

// InterestOps returns the current interest set.
func (k *SelectionKey) InterestOps() (int, error) {
	if !k.valid.Load() {
		return 0, api.ErrCancelledKey
	}
	return int(k.interest.Load()), nil
}

// SetInterestOps replaces the interest set and pushes the translated event
// bits into the poll array, so the change is live no later than the next
// round.
func (k *SelectionKey) SetInterestOps(ops int) error {
	if !k.valid.Load() {
		return api.ErrCancelledKey
	}
	if ops&^k.channel.ValidOps() != 0 {
		return api.ErrIllegalArgument
	}
	k.interest.Store(int32(ops))
	return k.selector.putEventOps(k, k.channel.TranslateInterestOps(ops))
}

// ReadyOps returns the ready set as of the last completed select round.
func (k *SelectionKey) ReadyOps() (int, error) {
	if !k.valid.Load() {
		return 0, api.ErrCancelledKey
	}
	return int(k.ready.Load()), nil
}

// IsReadable reports OpRead readiness. Fails with ErrCancelledKey once the
// key is invalid, like ReadyOps.
func (k *SelectionKey) IsReadable() (bool, error) { return k.readyTest(api.OpRead) }

// IsWritable reports OpWrite readiness. Fails with ErrCancelledKey once the
// key is invalid.
func (k *SelectionKey) IsWritable() (bool, error) { return k.readyTest(api.OpWrite) }

// IsConnectable reports OpConnect readiness. Fails with ErrCancelledKey
// once the key is invalid.
func (k *SelectionKey) IsConnectable() (bool, error) { return k.readyTest(api.OpConnect) }

// IsAcceptable reports OpAccept readiness. Fails with ErrCancelledKey once
// the key is invalid.
func (k *SelectionKey) IsAcceptable() (bool, error) { return k.readyTest(api.OpAccept) }

func (k *SelectionKey) readyTest(op int) (bool, error) {
	if !k.valid.Load() {
		return false, api.ErrCancelledKey
	}
	return int(k.ready.Load())&op != 0, nil
}

// Attach swaps the attachment slot and returns the previous value.
func (k *SelectionKey) Attach(v any) any {
	prev := k.attachment.Swap(&v)
	if prev == nil {
		return nil
	}
	return *prev
}

// Attachment returns the current attachment, nil if none.
func (k *SelectionKey) Attachment() any {
	p := k.attachment.Load()
	if p == nil {
		return nil
	}
	return *p
}

// InterestBits implements api.KeyState for channel translations.
func (k *SelectionKey) InterestBits() int { return int(k.interest.Load()) }

// ReadyBits implements api.KeyState for channel translations.
func (k *SelectionKey) ReadyBits() int { return int(k.ready.Load()) }

// SetReadyBits implements api.KeyState for channel translations. Written
// only by the owning selector during result merging.
func (k *SelectionKey) SetReadyBits(ops int) { k.ready.Store(int32(ops)) }

func (k *SelectionKey) invalidate() { k.valid.Store(false) }

// Index returns the key's position in the selector's channel table, -1 once
// deregistered.
func (k *SelectionKey) Index() int { return int(k.index.Load()) }
