// File: selector/subselector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A subSelector owns one contiguous slice of the poll array and the three
// result arrays its native poll fills. The main goroutine owns slice zero;
// helper worker i owns the slice starting at (i+1)*maxFDs.

package selector

import (
	"github.com/momentics/fanpoll/api"
	"github.com/momentics/fanpoll/internal/syspoll"
)

type subSelector struct {
	sel            *Selector
	pollArrayIndex int

	// Result arrays of the native poll: element 0 is the hit count,
	// elements [1..count] are selected descriptors.
	readFDs   []int32
	writeFDs  []int32
	exceptFDs []int32
}

func newSubSelector(sel *Selector, pollArrayIndex int) *subSelector {
	return &subSelector{
		sel:            sel,
		pollArrayIndex: pollArrayIndex,
		readFDs:        make([]int32, sel.maxFDs+1),
		writeFDs:       make([]int32, sel.maxFDs+1),
		exceptFDs:      make([]int32, sel.maxFDs+1),
	}
}

// poll runs the native round for the main slice.
func (ss *subSelector) poll() error {
	s := ss.sel
	n := int(s.totalChannels.Load())
	if n > s.maxFDs {
		n = s.maxFDs
	}
	_, err := syspoll.Poll(s.pollArray, 0, n,
		ss.readFDs, ss.writeFDs, ss.exceptFDs, s.timeout)
	return err
}

// pollHelper runs the native round for helper slice index.
func (ss *subSelector) pollHelper(index int) error {
	s := ss.sel
	n := int(s.totalChannels.Load()) - (index+1)*s.maxFDs
	if n > s.maxFDs {
		n = s.maxFDs
	}
	_, err := syspoll.Poll(s.pollArray, ss.pollArrayIndex, n,
		ss.readFDs, ss.writeFDs, ss.exceptFDs, s.timeout)
	return err
}

// processSelectedKeys folds this sub-selector's three result sets into the
// selected-key set. Within one round the first set touching a key
// establishes its ready ops and the remaining sets merge into them.
func (ss *subSelector) processSelectedKeys(updateCount uint64) int {
	numKeysUpdated := 0
	numKeysUpdated += ss.processFDSet(updateCount, ss.readFDs,
		syspoll.Pollin, false)
	numKeysUpdated += ss.processFDSet(updateCount, ss.writeFDs,
		syspoll.Pollconn|syspoll.Pollout, false)
	numKeysUpdated += ss.processFDSet(updateCount, ss.exceptFDs,
		syspoll.Pollin|syspoll.Pollconn|syspoll.Pollout, true)
	return numKeysUpdated
}

// processFDSet walks one result set. clearedCount decides between
// set-semantics and merge-semantics for ready ops; updateCount guarantees a
// key counts at most once per round even when its descriptor surfaces in
// several result sets.
func (ss *subSelector) processFDSet(updateCount uint64, fds []int32, rOps uint16, isExceptFDs bool) int {
	s := ss.sel
	numKeysUpdated := 0
	for i := int32(1); i <= fds[0]; i++ {
		desc := int(fds[i])
		if desc == s.wakeupSourceFD {
			s.interruptMu.Lock()
			s.interruptTriggered = true
			s.interruptMu.Unlock()
			continue
		}
		me := s.fdMap.get(desc)
		// Deregistered earlier in this round.
		if me == nil {
			continue
		}
		k := me.key
		ch := k.channel

		// On a TCP socket the except set can mean queued OOB data. When an
		// urgent byte was present it is discarded and the key stays out of
		// the selected set; otherwise the descriptor is merged like any other.
		if isExceptFDs && ch.Kind() == api.SocketKindTCP &&
			syspoll.DiscardUrgentData(desc) {
			continue
		}

		if s.selected.Contains(k) {
			if me.clearedCount != updateCount {
				if ch.TranslateAndSetReadyOps(rOps, k) &&
					me.updateCount != updateCount {
					me.updateCount = updateCount
					numKeysUpdated++
				}
			} else {
				if ch.TranslateAndUpdateReadyOps(rOps, k) &&
					me.updateCount != updateCount {
					me.updateCount = updateCount
					numKeysUpdated++
				}
			}
			me.clearedCount = updateCount
		} else {
			if me.clearedCount != updateCount {
				ch.TranslateAndSetReadyOps(rOps, k)
			} else {
				ch.TranslateAndUpdateReadyOps(rOps, k)
			}
			if k.ReadyBits()&k.InterestBits() != 0 {
				s.selected.add(k)
				me.updateCount = updateCount
				numKeysUpdated++
			}
			me.clearedCount = updateCount
		}
	}
	return numKeysUpdated
}
