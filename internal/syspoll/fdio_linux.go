//go:build linux
// +build linux

// File: internal/syspoll/fdio_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Descriptor-level I/O helpers for the pipe channels and the wakeup pair.

package syspoll

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports a nonblocking operation that found no data or no
// buffer space.
var ErrWouldBlock = errors.New("syspoll: operation would block")

// NewPipeFDs creates the unidirectional pair backing a Pipe: both ends
// nonblocking and close-on-exec. Returns (source, sink).
func NewPipeFDs() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// ReadFD reads from a nonblocking descriptor.
func ReadFD(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WriteFD writes to a nonblocking descriptor.
func WriteFD(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CloseFD closes a descriptor.
func CloseFD(fd int) error {
	return unix.Close(fd)
}
