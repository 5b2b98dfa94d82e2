// File: selector/locks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The two rendezvous barriers of a select round. Helpers sleep on startLock
// between rounds and are released together; the main goroutine sleeps on
// finishLock until the last helper reports in. The first participant to
// leave the native poll wakes the rest through the wakeup pipe, so one
// ready descriptor ends the whole round.

package selector

import (
	"fmt"
	"sync"
)

// startLock releases helper workers into the next poll round. runsCounter
// distinguishes the current round from the previous one: bumping it and
// broadcasting is what triggers another round of polling.
type startLock struct {
	mu          sync.Mutex
	cond        *sync.Cond
	runsCounter uint64
}

func (l *startLock) init() {
	l.cond = sync.NewCond(&l.mu)
}

func (l *startLock) currentRun() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runsCounter
}

// startThreads begins the next run and wakes every waiting helper. Helpers
// that have been marked zombie observe the flag on wakeup and exit.
func (l *startLock) startThreads() {
	l.mu.Lock()
	l.runsCounter++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// waitForStart blocks w until the next run begins. Reports true when the
// worker has become redundant and must exit instead of polling.
func (l *startLock) waitForStart(w *selectWorker) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.runsCounter == w.lastRun {
		l.cond.Wait()
	}
	if w.zombie.Load() {
		return true
	}
	w.lastRun = l.runsCounter
	return false
}

// finishLock collects helper completions. It also captures the first I/O
// error of the round; the error surfaces on the main goroutine only after
// every helper has finished.
type finishLock struct {
	mu              sync.Mutex
	cond            *sync.Cond
	sel             *Selector
	total           int
	threadsToFinish int
	err             error
}

func (l *finishLock) init(sel *Selector) {
	l.sel = sel
	l.cond = sync.NewCond(&l.mu)
}

// reset arms the barrier for a round with n helpers.
func (l *finishLock) reset(n int) {
	l.mu.Lock()
	l.total = n
	l.threadsToFinish = n
	l.mu.Unlock()
}

// threadFinished is called by each helper when it leaves its poll. The
// first finisher wakes everyone else; the last one signals the main
// goroutine.
func (l *finishLock) threadFinished() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.threadsToFinish == l.total {
		l.sel.Wakeup()
	}
	l.threadsToFinish--
	if l.threadsToFinish == 0 {
		l.cond.Signal()
	}
}

// waitForHelperThreads parks the main goroutine until every helper has
// reported in. If none finished yet, the main goroutine is the first one
// out of poll and wakes the helpers itself.
func (l *finishLock) waitForHelperThreads() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.threadsToFinish == l.total {
		l.sel.Wakeup()
	}
	for l.threadsToFinish != 0 {
		l.cond.Wait()
	}
}

// setError records the round's first poll failure.
func (l *finishLock) setError(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
}

// checkForError surfaces and clears the captured failure, if any.
func (l *finishLock) checkForError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		return nil
	}
	err := l.err
	l.err = nil
	return fmt.Errorf("fanpoll: select round failed: %w", err)
}
