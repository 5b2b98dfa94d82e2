// File: selector/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// selectWorker is a helper goroutine polling one slice of the poll array.
// Workers live across rounds, parked on startLock; a worker marked zombie
// exits at its next release.

package selector

import (
	"sync/atomic"

	"go.uber.org/zap"
)

type selectWorker struct {
	sel     *Selector
	index   int
	sub     *subSelector
	lastRun uint64
	zombie  atomic.Bool
}

func newSelectWorker(sel *Selector, index int) *selectWorker {
	return &selectWorker{
		sel:   sel,
		index: index,
		sub:   newSubSelector(sel, (index+1)*sel.maxFDs),
		// Wait for the next round rather than joining a running one.
		lastRun: sel.start.currentRun(),
	}
}

func (w *selectWorker) makeZombie() {
	w.zombie.Store(true)
}

func (w *selectWorker) run() {
	for {
		if w.sel.start.waitForStart(w) {
			w.sel.log.Debug("helper retired",
				zap.String("selector", w.sel.id),
				zap.Int("helper", w.index))
			return
		}
		if err := w.sub.pollHelper(w.index); err != nil {
			w.sel.finish.setError(err)
		}
		w.sel.finish.threadFinished()
	}
}
