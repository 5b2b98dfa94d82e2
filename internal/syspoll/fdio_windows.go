//go:build windows
// +build windows

// File: internal/syspoll/fdio_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Descriptor-level I/O helpers for the pipe channels and the wakeup pair.
// Windows has no selectable anonymous pipes, so a Pipe is a connected
// loopback TCP pair with Nagle disabled on the sink: a wakeup byte must not
// sit in the kernel waiting for coalescing.

package syspoll

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ErrWouldBlock reports a nonblocking operation that found no data or no
// buffer space.
var ErrWouldBlock = errors.New("syspoll: operation would block")

var (
	procAccept      = modws2_32.NewProc("accept")
	procIoctlsocket = modws2_32.NewProc("ioctlsocket")
)

const fionbio = 0x8004667e

func setNonblocking(h windows.Handle) error {
	arg := uint32(1)
	n, _, callErr := procIoctlsocket.Call(uintptr(h), fionbio,
		uintptr(unsafe.Pointer(&arg)))
	if int32(n) != 0 {
		return fmt.Errorf("syspoll: ioctlsocket: %w", callErr)
	}
	return nil
}

// NewPipeFDs creates the loopback pair backing a Pipe: both ends
// nonblocking, TCP_NODELAY on the sink. Returns (source, sink).
func NewPipeFDs() (int, int, error) {
	ls, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, err
	}
	defer windows.Closesocket(ls)

	sa := &windows.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	if err := windows.Bind(ls, sa); err != nil {
		return -1, -1, err
	}
	if err := windows.Listen(ls, 1); err != nil {
		return -1, -1, err
	}
	bound, err := windows.Getsockname(ls)
	if err != nil {
		return -1, -1, err
	}

	sink, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, err
	}
	if err := windows.Connect(sink, bound); err != nil {
		windows.Closesocket(sink)
		return -1, -1, err
	}

	source, _, callErr := procAccept.Call(uintptr(ls), 0, 0)
	if windows.Handle(source) == windows.InvalidHandle {
		windows.Closesocket(sink)
		return -1, -1, fmt.Errorf("syspoll: accept: %w", callErr)
	}

	if err := windows.SetsockoptInt(sink, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1); err != nil {
		windows.Closesocket(sink)
		windows.Closesocket(windows.Handle(source))
		return -1, -1, err
	}
	for _, h := range []windows.Handle{windows.Handle(source), sink} {
		if err := setNonblocking(h); err != nil {
			windows.Closesocket(sink)
			windows.Closesocket(windows.Handle(source))
			return -1, -1, err
		}
	}
	return int(source), int(sink), nil
}

// ReadFD reads from a nonblocking descriptor.
func ReadFD(fd int, p []byte) (int, error) {
	n, _, callErr := procRecv.Call(uintptr(fd),
		uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0)
	if int32(n) < 0 {
		if callErr == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("syspoll: recv: %w", callErr)
	}
	return int(int32(n)), nil
}

// WriteFD writes to a nonblocking descriptor.
func WriteFD(fd int, p []byte) (int, error) {
	n, _, callErr := procSend.Call(uintptr(fd),
		uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0)
	if int32(n) < 0 {
		if callErr == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("syspoll: send: %w", callErr)
	}
	return int(int32(n)), nil
}

// CloseFD closes a descriptor.
func CloseFD(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}
