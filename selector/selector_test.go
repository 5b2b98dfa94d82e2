// File: selector/selector_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lifecycle and readiness tests against the public selector surface.

package selector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fanpoll/api"
	"github.com/momentics/fanpoll/channel"
	"github.com/momentics/fanpoll/control"
	"github.com/momentics/fanpoll/selector"
)

func openPipe(t *testing.T) *channel.Pipe {
	t.Helper()
	p, err := channel.NewPipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSelectSingleReadableSource(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p1 := openPipe(t)
	p2 := openPipe(t)

	k1, err := sel.Register(p1.Source(), api.OpRead, "p1")
	require.NoError(t, err)
	_, err = sel.Register(p2.Source(), api.OpRead, "p2")
	require.NoError(t, err)

	_, err = p1.Sink().Write([]byte{0x2a})
	require.NoError(t, err)

	n, err := sel.Select()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	selected := sel.SelectedKeys().Keys()
	require.Len(t, selected, 1)
	assert.Same(t, k1, selected[0])

	ready, err := k1.ReadyOps()
	require.NoError(t, err)
	assert.Equal(t, api.OpRead, ready)
	readable, err := k1.IsReadable()
	require.NoError(t, err)
	assert.True(t, readable)
	assert.Equal(t, "p1", k1.Attachment())
}

func TestReadySubsetOfInterest(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	k, err := sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	_, err = p.Sink().Write([]byte{1})
	require.NoError(t, err)

	_, err = sel.Select()
	require.NoError(t, err)

	ready, err := k.ReadyOps()
	require.NoError(t, err)
	interest, err := k.InterestOps()
	require.NoError(t, err)
	assert.Zero(t, ready&^interest)
}

func TestCancelledKeyRemovedNextRound(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	k, err := sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	_, err = p.Sink().Write([]byte{1})
	require.NoError(t, err)
	n, err := sel.Select()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, sel.SelectedKeys().Contains(k))

	k.Cancel()
	k.Cancel() // idempotent
	assert.False(t, k.IsValid())

	_, err = sel.SelectNow()
	require.NoError(t, err)

	assert.False(t, k.IsValid())
	assert.Empty(t, sel.Keys())
	assert.False(t, sel.SelectedKeys().Contains(k))
	assert.Equal(t, -1, k.Index())

	_, err = k.InterestOps()
	assert.ErrorIs(t, err, api.ErrCancelledKey)
	_, err = k.ReadyOps()
	assert.ErrorIs(t, err, api.ErrCancelledKey)
	_, err = k.IsReadable()
	assert.ErrorIs(t, err, api.ErrCancelledKey)
	_, err = k.IsWritable()
	assert.ErrorIs(t, err, api.ErrCancelledKey)

	// Channel, Selector and Attachment stay accessible.
	assert.NotNil(t, k.Channel())
	assert.Same(t, sel, k.Selector())
	assert.Nil(t, k.Attachment())
}

func TestWakeupUnblocksSelect(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	_, err = sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		n, serr := sel.Select()
		if serr != nil {
			done <- -1
			return
		}
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	sel.Wakeup()

	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("Select did not return after Wakeup")
	}
	assert.Zero(t, sel.SelectedKeys().Len())

	// The wakeup must not linger: the next bounded select blocks its full
	// timeout and returns empty.
	start := time.Now()
	n, err := sel.SelectTimeout(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWakeupBeforeSelectShortCircuitsOnce(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	sel.Wakeup()
	sel.Wakeup() // idempotent between rounds

	start := time.Now()
	n, err := sel.Select()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	start = time.Now()
	n, err = sel.SelectTimeout(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestInterruptedSelectReturnsZeroAndKeepsStatus(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	_, err = sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	ir := channel.NewInterrupter()
	done := make(chan int, 1)
	go func() {
		n, serr := sel.SelectWith(ir)
		if serr != nil {
			done <- -1
			return
		}
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	ir.Interrupt()

	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("SelectWith did not return after Interrupt")
	}
	assert.True(t, ir.Interrupted())

	// The wakeup flag is cleared by the round itself; a SelectNow finds a
	// quiet selector.
	n, err := sel.SelectNow()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSelectTimeoutRejectsNegative(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	_, err = sel.SelectTimeout(-time.Second)
	assert.ErrorIs(t, err, api.ErrIllegalArgument)
}

func TestRegisterValidations(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)

	_, err = sel.Register(nil, api.OpRead, nil)
	assert.ErrorIs(t, err, api.ErrIllegalArgument)

	// A source is never writable.
	_, err = sel.Register(p.Source(), api.OpWrite, nil)
	assert.ErrorIs(t, err, api.ErrIllegalArgument)

	require.NoError(t, p.Source().Close())
	_, err = sel.Register(p.Source(), api.OpRead, nil)
	assert.ErrorIs(t, err, api.ErrClosedChannel)
}

func TestSetInterestOpsValidatesAndRoutes(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	k, err := sel.Register(p.Source(), 0, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, k.SetInterestOps(api.OpAccept), api.ErrIllegalArgument)

	// With no interest, readiness is not surfaced.
	_, err = p.Sink().Write([]byte{1})
	require.NoError(t, err)
	n, err := sel.SelectNow()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Raising interest makes the same byte visible next round.
	require.NoError(t, k.SetInterestOps(api.OpRead))
	n, err = sel.Select()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttachSwapsAtomically(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	k, err := sel.Register(p.Source(), api.OpRead, "first")
	require.NoError(t, err)

	assert.Equal(t, "first", k.Attachment())
	assert.Equal(t, "first", k.Attach("second"))
	assert.Equal(t, "second", k.Attachment())
	assert.Equal(t, "second", k.Attach(nil))
	assert.Nil(t, k.Attachment())
}

func TestChannelCloseInvalidatesKeyAndKills(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)
	defer sel.Close()

	p := openPipe(t)
	src := p.Source()
	k, err := sel.Register(src, api.OpRead, nil)
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.False(t, k.IsValid())

	_, err = sel.SelectNow()
	require.NoError(t, err)
	assert.Empty(t, sel.Keys())
	assert.True(t, src.Killed())
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	sel, err := selector.Open()
	require.NoError(t, err)

	p := openPipe(t)
	k, err := sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	require.NoError(t, sel.Close())
	require.NoError(t, sel.Close())

	assert.False(t, sel.IsOpen())
	assert.False(t, k.IsValid())
	assert.Empty(t, sel.Keys())

	_, err = sel.SelectNow()
	assert.ErrorIs(t, err, api.ErrClosedSelector)
	_, err = sel.Register(p.Source(), api.OpRead, nil)
	assert.ErrorIs(t, err, api.ErrClosedSelector)

	// Wakeup stays callable after close.
	sel.Wakeup()
}

func TestMetricsAndProbes(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	probes := control.NewProbeRegistry()

	sel, err := selector.Open(
		selector.WithMetrics(metrics),
		selector.WithProbes(probes),
	)
	require.NoError(t, err)

	p := openPipe(t)
	_, err = sel.Register(p.Source(), api.OpRead, nil)
	require.NoError(t, err)

	_, err = sel.SelectNow()
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.Counter("selector_rounds"))
	assert.Equal(t, int64(1), metrics.Gauge("selector_keys"))

	state, ok := probes.Get(sel.ID())
	require.True(t, ok)
	assert.Equal(t, sel.ID(), state.ID)
	assert.True(t, state.Open)
	assert.Equal(t, 1, state.Keys)
	assert.Equal(t, 0, state.Helpers)
	assert.Equal(t, int64(1), state.Rounds)

	require.NoError(t, sel.Close())
	_, ok = probes.Get(sel.ID())
	assert.False(t, ok)
	assert.NotContains(t, probes.Snapshot(), sel.ID())
}
