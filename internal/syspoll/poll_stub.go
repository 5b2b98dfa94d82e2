//go:build !linux && !windows
// +build !linux,!windows

// File: internal/syspoll/poll_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub backend for unsupported platforms.

package syspoll

import "errors"

var errUnsupported = errors.New("syspoll: platform not supported")

func Poll(arr *PollArray, offset, numFDs int, readFDs, writeFDs, exceptFDs []int32, timeoutMillis int64) (int, error) {
	return 0, errUnsupported
}

func SetWakeupSocket(sinkFD int) error { return errUnsupported }

func ResetWakeupSocket(sourceFD int) error { return errUnsupported }

func DiscardUrgentData(fd int) bool { return false }
