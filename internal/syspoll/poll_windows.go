//go:build windows
// +build windows

// File: internal/syspoll/poll_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows backend over ws2_32 select(). This is the design target of the
// whole selector: a level-triggered, array-based readiness call whose
// per-call capacity is bounded by FD_SETSIZE.

package syspoll

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modws2_32  = windows.NewLazySystemDLL("ws2_32.dll")
	procSelect = modws2_32.NewProc("select")
	procSend   = modws2_32.NewProc("send")
	procRecv   = modws2_32.NewProc("recv")
)

const msgOOB = 0x1

// wsaFDSet matches the WinSock fd_set layout: a count followed by an array
// of SOCKET handles.
type wsaFDSet struct {
	count uint32
	array [FDSetSize]uintptr
}

func (s *wsaFDSet) add(fd uintptr) {
	if int(s.count) < len(s.array) {
		s.array[s.count] = fd
		s.count++
	}
}

func (s *wsaFDSet) contains(fd uintptr) bool {
	for i := uint32(0); i < s.count; i++ {
		if s.array[i] == fd {
			return true
		}
	}
	return false
}

// wsaTimeval matches the WinSock timeval layout (two C longs).
type wsaTimeval struct {
	sec  int32
	usec int32
}

// Poll runs one readiness round over numFDs slots of arr starting at offset.
// See the linux backend for the result-array contract; the two backends fill
// them identically.
func Poll(arr *PollArray, offset, numFDs int, readFDs, writeFDs, exceptFDs []int32, timeoutMillis int64) (int, error) {
	var rset, wset, eset wsaFDSet
	for i := offset; i < offset+numFDs; i++ {
		e := arr.entries[i]
		fd := uintptr(e.fd)
		if e.events&Pollin != 0 {
			rset.add(fd)
		}
		if e.events&(Pollout|Pollconn) != 0 {
			wset.add(fd)
		}
		eset.add(fd)
	}

	var tvPtr uintptr
	var tv wsaTimeval
	if timeoutMillis >= 0 {
		tv.sec = int32(timeoutMillis / 1000)
		tv.usec = int32(timeoutMillis%1000) * 1000
		tvPtr = uintptr(unsafe.Pointer(&tv))
	}

	// The first select() argument is ignored on Windows.
	n, _, callErr := procSelect.Call(0,
		uintptr(unsafe.Pointer(&rset)),
		uintptr(unsafe.Pointer(&wset)),
		uintptr(unsafe.Pointer(&eset)),
		tvPtr)
	if int32(n) < 0 {
		return 0, fmt.Errorf("syspoll: select: %w", callErr)
	}

	readFDs[0], writeFDs[0], exceptFDs[0] = 0, 0, 0
	for i := offset; i < offset+numFDs; i++ {
		fd := uintptr(arr.entries[i].fd)
		if rset.contains(fd) {
			readFDs[0]++
			readFDs[readFDs[0]] = int32(fd)
		}
		if wset.contains(fd) {
			writeFDs[0]++
			writeFDs[writeFDs[0]] = int32(fd)
		}
		if eset.contains(fd) {
			exceptFDs[0]++
			exceptFDs[exceptFDs[0]] = int32(fd)
		}
	}
	return int(n), nil
}

// SetWakeupSocket puts the wakeup pair into a signaled state by sending a
// single byte to the sink socket.
func SetWakeupSocket(sinkFD int) error {
	b := [1]byte{1}
	n, _, callErr := procSend.Call(uintptr(sinkFD),
		uintptr(unsafe.Pointer(&b[0])), 1, 0)
	if int32(n) < 0 {
		return fmt.Errorf("syspoll: wakeup send: %w", callErr)
	}
	return nil
}

// ResetWakeupSocket drains the wakeup pair back to a non-signaled state.
func ResetWakeupSocket(sourceFD int) error {
	var buf [128]byte
	for {
		n, _, callErr := procRecv.Call(uintptr(sourceFD),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
		if int32(n) < 0 {
			if callErr == windows.WSAEWOULDBLOCK {
				return nil
			}
			return fmt.Errorf("syspoll: wakeup drain: %w", callErr)
		}
		if int(int32(n)) < len(buf) {
			return nil
		}
	}
}

// DiscardUrgentData reads and drops one out-of-band byte from a TCP socket.
// Reports whether urgent data was actually present.
func DiscardUrgentData(fd int) bool {
	var b [1]byte
	n, _, _ := procRecv.Call(uintptr(fd),
		uintptr(unsafe.Pointer(&b[0])), 1, msgOOB)
	return int32(n) > 0
}
