// File: internal/syspoll/pollarray.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PollArray mirrors a kernel pollfd array: contiguous (fd, events, revents)
// slots the platform backends read during a poll round. The array owns its
// backing allocation, grows in powers of two, and is mutated only under the
// selector's close lock or by the single sub-selector owning a slice.

package syspoll

// pollFD matches the kernel pollfd ABI: 8 bytes per slot.
type pollFD struct {
	fd      int32
	events  uint16
	revents uint16
}

// SizeofPollFD is the byte width of one poll-array slot.
const SizeofPollFD = 8

// InitCap is the initial slot capacity of a fresh poll array.
const InitCap = 8

// PollArray is a growable array of pollFD slots.
type PollArray struct {
	entries []pollFD
}

// NewPollArray allocates an array with the given slot capacity.
func NewPollArray(capacity int) *PollArray {
	if capacity < InitCap {
		capacity = InitCap
	}
	return &PollArray{entries: make([]pollFD, capacity)}
}

// Capacity returns the current slot capacity.
func (a *PollArray) Capacity() int {
	return len(a.entries)
}

// AddEntry writes a fresh slot for fd at index: no requested events yet,
// no returned events.
func (a *PollArray) AddEntry(index, fd int) {
	a.entries[index] = pollFD{fd: int32(fd)}
}

// AddWakeupEntry writes the sticky wakeup slot at index: the wakeup source
// is always polled for readability.
func (a *PollArray) AddWakeupEntry(fd, index int) {
	a.entries[index] = pollFD{fd: int32(fd), events: Pollin}
}

// PutEventOps overwrites only the requested-events word of a slot.
func (a *PollArray) PutEventOps(index int, events uint16) {
	a.entries[index].events = events
}

// EventOps reads the requested-events word of a slot.
func (a *PollArray) EventOps(index int) uint16 {
	return a.entries[index].events
}

// FD reads the descriptor stored in a slot.
func (a *PollArray) FD(index int) int {
	return int(a.entries[index].fd)
}

// ReplaceEntry copies one slot by value from src to dst.
func ReplaceEntry(src *PollArray, srcIndex int, dst *PollArray, dstIndex int) {
	dst.entries[dstIndex] = src.entries[srcIndex]
}

// Grow reallocates to newCapacity slots, carrying existing entries over.
// Callers must guarantee no backend is mid-poll on the old allocation.
func (a *PollArray) Grow(newCapacity int) {
	grown := make([]pollFD, newCapacity)
	copy(grown, a.entries)
	a.entries = grown
}

// Free releases the backing allocation. The array is unusable afterwards.
func (a *PollArray) Free() {
	a.entries = nil
}
