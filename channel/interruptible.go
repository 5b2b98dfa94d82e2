// File: channel/interruptible.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interruptible is the base every registerable channel embeds. It funnels
// asynchronous close and interrupt-driven abort through one path: closing
// the channel's descriptor, which makes any in-progress kernel call on it
// return immediately.

package channel

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/fanpoll/api"
)

// Interruptible provides the Begin/End bracket, idempotent Close, close
// hooks, and the registration count the selector consults before Kill.
type Interruptible struct {
	closeMu       sync.Mutex
	open          atomic.Bool
	closeFn       func() error
	interruptedBy *Interrupter // guarded by closeMu
	registrations atomic.Int32

	nextHookID int
	closeHooks map[int]func()
}

// initInterruptible arms the base with the concrete channel's close
// function. closeFn must make any blocked kernel call on the channel's
// descriptor return; in practice it closes the descriptor.
func (c *Interruptible) initInterruptible(closeFn func() error) {
	c.closeFn = closeFn
	c.open.Store(true)
}

// IsOpen reports the channel's user-visible open state.
func (c *Interruptible) IsOpen() bool {
	return c.open.Load()
}

// TrackRegistration adjusts the selector-registration count by delta and
// returns the new count.
func (c *Interruptible) TrackRegistration(delta int) int {
	return int(c.registrations.Add(int32(delta)))
}

// OnClose registers a hook run once when the channel transitions to
// closed. Returns a func that unregisters it. On an already closed channel
// the hook runs synchronously.
func (c *Interruptible) OnClose(hook func()) func() {
	c.closeMu.Lock()
	if !c.open.Load() {
		c.closeMu.Unlock()
		hook()
		return func() {}
	}
	if c.closeHooks == nil {
		c.closeHooks = make(map[int]func())
	}
	id := c.nextHookID
	c.nextHookID++
	c.closeHooks[id] = hook
	c.closeMu.Unlock()
	return func() {
		c.closeMu.Lock()
		delete(c.closeHooks, id)
		c.closeMu.Unlock()
	}
}

// takeCloseHooks empties the hook table. Caller holds closeMu.
func (c *Interruptible) takeCloseHooks() []func() {
	hooks := make([]func(), 0, len(c.closeHooks))
	for _, h := range c.closeHooks {
		hooks = append(hooks, h)
	}
	c.closeHooks = nil
	return hooks
}

// Begin marks the start of a blocking I/O call. It arms ir so that a
// concurrent Interrupt closes this channel and unblocks the call. If ir
// has already fired, the abort runs synchronously before any blocking
// happens.
func (c *Interruptible) Begin(ir *Interrupter) {
	if ir == nil {
		return
	}
	ir.install(func() { c.interruptFrom(ir) })
	if ir.Interrupted() {
		c.interruptFrom(ir)
	}
}

func (c *Interruptible) interruptFrom(ir *Interrupter) {
	c.closeMu.Lock()
	if !c.open.Load() {
		c.closeMu.Unlock()
		return
	}
	c.interruptedBy = ir
	c.open.Store(false)
	_ = c.closeFn()
	hooks := c.takeCloseHooks()
	c.closeMu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// End marks the end of a blocking I/O call. completed tells whether the
// call observed a result. End reports ErrClosedByInterrupt when this
// bracket was aborted by ir (the interrupt status on ir stays set), and
// ErrAsyncClose when the call did not complete because the channel was
// closed concurrently.
func (c *Interruptible) End(ir *Interrupter, completed bool) error {
	if ir != nil {
		ir.uninstall()
	}
	c.closeMu.Lock()
	hit := ir != nil && c.interruptedBy == ir
	if hit {
		c.interruptedBy = nil
	}
	c.closeMu.Unlock()
	if hit {
		return api.ErrClosedByInterrupt
	}
	if !completed && !c.open.Load() {
		return api.ErrAsyncClose
	}
	return nil
}

// Close flips the channel to closed and runs the close function exactly
// once. Idempotent.
func (c *Interruptible) Close() error {
	c.closeMu.Lock()
	if !c.open.Load() {
		c.closeMu.Unlock()
		return nil
	}
	c.open.Store(false)
	err := c.closeFn()
	hooks := c.takeCloseHooks()
	c.closeMu.Unlock()
	for _, h := range hooks {
		h()
	}
	return err
}
