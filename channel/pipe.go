// File: channel/pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A unidirectional pipe whose two ends are selectable channels. The
// selector also creates one internally as its wakeup primitive; the source
// end's descriptor is what the poll-array sentinel slots carry.

package channel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/fanpoll/api"
	"github.com/momentics/fanpoll/internal/syspoll"
)

// ErrWouldBlock reports a nonblocking Read or Write that found no data or
// no buffer space.
var ErrWouldBlock = errors.New("fanpoll: operation would block")

// Pipe is a source/sink channel pair: bytes written to the sink become
// readable on the source.
type Pipe struct {
	source *SourceChannel
	sink   *SinkChannel
}

// NewPipe opens a pipe with both ends nonblocking.
func NewPipe() (*Pipe, error) {
	sourceFD, sinkFD, err := syspoll.NewPipeFDs()
	if err != nil {
		return nil, fmt.Errorf("fanpoll: open pipe: %w", err)
	}
	p := &Pipe{
		source: &SourceChannel{fd: sourceFD},
		sink:   &SinkChannel{fd: sinkFD},
	}
	p.source.initInterruptible(func() error { return syspoll.CloseFD(sourceFD) })
	p.sink.initInterruptible(func() error { return syspoll.CloseFD(sinkFD) })
	return p, nil
}

// Source returns the readable end.
func (p *Pipe) Source() *SourceChannel { return p.source }

// Sink returns the writable end.
func (p *Pipe) Sink() *SinkChannel { return p.sink }

// Close closes both ends.
func (p *Pipe) Close() error {
	serr := p.source.Close()
	kerr := p.sink.Close()
	if serr != nil {
		return serr
	}
	return kerr
}

// SourceChannel is the readable end of a pipe.
type SourceChannel struct {
	Interruptible
	fd     int
	killed atomic.Bool
}

// FDVal returns the native descriptor.
func (c *SourceChannel) FDVal() int { return c.fd }

// ValidOps reports that a source is only ever readable.
func (c *SourceChannel) ValidOps() int { return api.OpRead }

// Kind reports that a pipe end is not a TCP socket, so it never takes the
// urgent-data discard path.
func (c *SourceChannel) Kind() api.SocketKind { return api.SocketKindNone }

// TranslateInterestOps maps interest bits to native poll events.
func (c *SourceChannel) TranslateInterestOps(ops int) uint16 {
	var events uint16
	if ops&api.OpRead != 0 {
		events |= syspoll.Pollin
	}
	return events
}

// TranslateAndSetReadyOps overwrites the key's ready ops from revents.
func (c *SourceChannel) TranslateAndSetReadyOps(revents uint16, key api.KeyState) bool {
	return translateReadyOps(revents, 0, key, syspoll.Pollin, api.OpRead)
}

// TranslateAndUpdateReadyOps merges revents into the key's ready ops.
func (c *SourceChannel) TranslateAndUpdateReadyOps(revents uint16, key api.KeyState) bool {
	return translateReadyOps(revents, key.ReadyBits(), key, syspoll.Pollin, api.OpRead)
}

// Kill releases native state once the channel is closed and deregistered
// everywhere. The descriptor itself is already closed by Close.
func (c *SourceChannel) Kill() error {
	c.killed.Store(true)
	return nil
}

// Killed reports whether Kill has run.
func (c *SourceChannel) Killed() bool { return c.killed.Load() }

// Read performs a nonblocking read. Returns ErrWouldBlock when the pipe is
// empty.
func (c *SourceChannel) Read(p []byte) (int, error) {
	if !c.IsOpen() {
		return 0, api.ErrClosedChannel
	}
	n, err := syspoll.ReadFD(c.fd, p)
	if err == syspoll.ErrWouldBlock {
		return 0, ErrWouldBlock
	}
	return n, err
}

// ReadWith performs a blocking read bracketed by Begin/End: it waits for
// data and can be aborted by closing the channel or firing ir.
func (c *SourceChannel) ReadWith(ir *Interrupter, p []byte) (n int, err error) {
	c.Begin(ir)
	defer func() {
		if endErr := c.End(ir, n > 0); endErr != nil {
			n, err = 0, endErr
		}
	}()
	for {
		if !c.IsOpen() {
			return 0, api.ErrClosedChannel
		}
		n, err = syspoll.ReadFD(c.fd, p)
		if err == nil {
			return n, nil
		}
		if err != syspoll.ErrWouldBlock {
			return 0, err
		}
		time.Sleep(time.Millisecond)
	}
}

// SinkChannel is the writable end of a pipe.
type SinkChannel struct {
	Interruptible
	fd     int
	killed atomic.Bool
}

// FDVal returns the native descriptor.
func (c *SinkChannel) FDVal() int { return c.fd }

// ValidOps reports that a sink is only ever writable.
func (c *SinkChannel) ValidOps() int { return api.OpWrite }

// Kind reports that a pipe end is not a TCP socket.
func (c *SinkChannel) Kind() api.SocketKind { return api.SocketKindNone }

// TranslateInterestOps maps interest bits to native poll events.
func (c *SinkChannel) TranslateInterestOps(ops int) uint16 {
	var events uint16
	if ops&api.OpWrite != 0 {
		events |= syspoll.Pollout
	}
	return events
}

// TranslateAndSetReadyOps overwrites the key's ready ops from revents.
func (c *SinkChannel) TranslateAndSetReadyOps(revents uint16, key api.KeyState) bool {
	return translateReadyOps(revents, 0, key, syspoll.Pollout, api.OpWrite)
}

// TranslateAndUpdateReadyOps merges revents into the key's ready ops.
func (c *SinkChannel) TranslateAndUpdateReadyOps(revents uint16, key api.KeyState) bool {
	return translateReadyOps(revents, key.ReadyBits(), key, syspoll.Pollout, api.OpWrite)
}

// Kill releases native state once the channel is closed and deregistered
// everywhere.
func (c *SinkChannel) Kill() error {
	c.killed.Store(true)
	return nil
}

// Killed reports whether Kill has run.
func (c *SinkChannel) Killed() bool { return c.killed.Load() }

// Write performs a nonblocking write. Returns ErrWouldBlock when the pipe
// is full.
func (c *SinkChannel) Write(p []byte) (int, error) {
	if !c.IsOpen() {
		return 0, api.ErrClosedChannel
	}
	n, err := syspoll.WriteFD(c.fd, p)
	if err == syspoll.ErrWouldBlock {
		return 0, ErrWouldBlock
	}
	return n, err
}

// WriteWith performs a blocking write bracketed by Begin/End.
func (c *SinkChannel) WriteWith(ir *Interrupter, p []byte) (n int, err error) {
	c.Begin(ir)
	defer func() {
		if endErr := c.End(ir, n > 0); endErr != nil {
			n, err = 0, endErr
		}
	}()
	for {
		if !c.IsOpen() {
			return 0, api.ErrClosedChannel
		}
		n, err = syspoll.WriteFD(c.fd, p)
		if err == nil {
			return n, nil
		}
		if err != syspoll.ErrWouldBlock {
			return 0, err
		}
		time.Sleep(time.Millisecond)
	}
}

// translateReadyOps applies the shared translation rule: an error or hangup
// condition makes the channel ready for its full interest set; otherwise
// the single native bit maps to the single operation bit when the
// application asked for it. The report compares against the ready ops the
// key already carried, so readiness that merely persists across rounds does
// not count as a change.
func translateReadyOps(revents uint16, initialOps int, key api.KeyState, nativeBit uint16, opBit int) bool {
	intOps := key.InterestBits()
	oldOps := key.ReadyBits()
	newOps := initialOps
	if revents&(syspoll.Pollerr|syspoll.Pollhup|syspoll.Pollnval) != 0 {
		newOps = intOps
		key.SetReadyBits(newOps)
		return (newOps & ^oldOps) != 0
	}
	if revents&nativeBit != 0 && intOps&opBit != 0 {
		newOps |= opBit
	}
	key.SetReadyBits(newOps)
	return (newOps & ^oldOps) != 0
}
