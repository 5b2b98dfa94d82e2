//go:build linux
// +build linux

// File: internal/syspoll/poll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux backend over select(2). The selector targets the bounded, array
// based readiness primitive, so the backend is select rather than epoll:
// level-triggered, capped at FDSetSize descriptors per call, identical in
// shape to the Windows backend.

package syspoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Poll runs one readiness round over numFDs slots of arr starting at offset.
// The three result slices receive the hit count at index 0 and descriptors
// at [1..count]. A slot joins the read set when polled for Pollin, the
// write set when polled for Pollout or Pollconn, and the exception set
// unconditionally. timeoutMillis < 0 blocks until readiness or wakeup.
func Poll(arr *PollArray, offset, numFDs int, readFDs, writeFDs, exceptFDs []int32, timeoutMillis int64) (int, error) {
	var rset, wset, eset unix.FdSet
	maxFD := -1
	for i := offset; i < offset+numFDs; i++ {
		e := arr.entries[i]
		fd := int(e.fd)
		if e.events&Pollin != 0 {
			rset.Set(fd)
		}
		if e.events&(Pollout|Pollconn) != 0 {
			wset.Set(fd)
		}
		eset.Set(fd)
		if fd > maxFD {
			maxFD = fd
		}
	}

	var tv *unix.Timeval
	if timeoutMillis >= 0 {
		t := unix.NsecToTimeval(timeoutMillis * 1e6)
		tv = &t
	}

	var n int
	var err error
	for {
		n, err = unix.Select(maxFD+1, &rset, &wset, &eset, tv)
		if err != unix.EINTR {
			break
		}
		// Signal delivery is not a readiness event; re-enter the wait. A
		// bounded wait restarts with the full timeout, which the round
		// semantics tolerate (the wakeup pipe bounds the delay).
	}
	if err != nil {
		return 0, fmt.Errorf("syspoll: select: %w", err)
	}

	readFDs[0], writeFDs[0], exceptFDs[0] = 0, 0, 0
	for i := offset; i < offset+numFDs; i++ {
		fd := int(arr.entries[i].fd)
		if rset.IsSet(fd) {
			readFDs[0]++
			readFDs[readFDs[0]] = int32(fd)
		}
		if wset.IsSet(fd) {
			writeFDs[0]++
			writeFDs[writeFDs[0]] = int32(fd)
		}
		if eset.IsSet(fd) {
			exceptFDs[0]++
			exceptFDs[exceptFDs[0]] = int32(fd)
		}
	}
	return n, nil
}

// SetWakeupSocket puts the wakeup pipe into a signaled state by writing a
// single byte to the sink end.
func SetWakeupSocket(sinkFD int) error {
	_, err := unix.Write(sinkFD, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("syspoll: wakeup write: %w", err)
	}
	return nil
}

// ResetWakeupSocket drains the wakeup pipe back to a non-signaled state.
func ResetWakeupSocket(sourceFD int) error {
	var buf [128]byte
	for {
		n, err := unix.Read(sourceFD, buf[:])
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return fmt.Errorf("syspoll: wakeup drain: %w", err)
		}
		if n < len(buf) {
			return nil
		}
	}
}

// DiscardUrgentData reads and drops one out-of-band byte from a TCP socket.
// Reports whether urgent data was actually present.
func DiscardUrgentData(fd int) bool {
	var b [1]byte
	n, _, err := unix.Recvfrom(fd, b[:], unix.MSG_OOB)
	return err == nil && n > 0
}
