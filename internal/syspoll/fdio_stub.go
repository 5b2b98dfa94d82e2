//go:build !linux && !windows
// +build !linux,!windows

// File: internal/syspoll/fdio_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package syspoll

import "errors"

// ErrWouldBlock reports a nonblocking operation that found no data or no
// buffer space.
var ErrWouldBlock = errors.New("syspoll: operation would block")

func NewPipeFDs() (int, int, error) { return -1, -1, errUnsupported }

func ReadFD(fd int, p []byte) (int, error) { return 0, errUnsupported }

func WriteFD(fd int, p []byte) (int, error) { return 0, errUnsupported }

func CloseFD(fd int) error { return errUnsupported }
