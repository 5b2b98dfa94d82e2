// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error kinds shared across the selector core.

package api

import "errors"

var (
	// ErrClosedSelector reports use of a selector after Close. Close and
	// Wakeup themselves stay callable.
	ErrClosedSelector = errors.New("fanpoll: selector is closed")

	// ErrClosedChannel reports an operation on a channel that is no longer
	// open.
	ErrClosedChannel = errors.New("fanpoll: channel is closed")

	// ErrCancelledKey reports access to key state after cancellation.
	// Channel, Selector and Attachment remain accessible.
	ErrCancelledKey = errors.New("fanpoll: key has been cancelled")

	// ErrIllegalArgument reports interest bits outside the channel's valid
	// set, or a negative select timeout.
	ErrIllegalArgument = errors.New("fanpoll: illegal argument")

	// ErrAsyncClose reports a blocking I/O call aborted by a concurrent
	// Close of its channel.
	ErrAsyncClose = errors.New("fanpoll: channel closed asynchronously during blocking I/O")

	// ErrClosedByInterrupt reports a blocking I/O call aborted because the
	// calling goroutine's Interrupter fired. The interrupt status remains
	// set on the Interrupter.
	ErrClosedByInterrupt = errors.New("fanpoll: channel closed by interrupt during blocking I/O")
)
