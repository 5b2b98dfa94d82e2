// File: internal/syspoll/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native poll event bits. The values mirror the event words stored in the
// poll array and are stable across platforms: the backends translate them
// into whatever the underlying select call wants.

package syspoll

const (
	Pollin   uint16 = 0x0001
	Pollconn uint16 = 0x0002
	Pollout  uint16 = 0x0004
	Pollerr  uint16 = 0x0008
	Pollhup  uint16 = 0x0010
	Pollnval uint16 = 0x0020
)

// FDSetSize is the per-call descriptor ceiling of the underlying select
// backend. One sub-selector never polls more than this many descriptors.
const FDSetSize = 1024
