// SPDX-License-Identifier: MIT
package meter

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// newCountingPoller returns a poller on a manual ticker whose work reports
// each completed cycle on the returned channel.
func newCountingPoller(t *testing.T) (*Poller, *fakeTicker, *atomic.Int32, chan struct{}) {
	t.Helper()
	ticker := &fakeTicker{ch: make(chan time.Time)}
	var count atomic.Int32
	cycles := make(chan struct{}, 16)

	p, err := NewPoller(time.Millisecond, func() {
		count.Add(1)
		cycles <- struct{}{}
	}, WithTicker(func(time.Duration) Ticker { return ticker }))
	require.NoError(t, err)
	return p, ticker, &count, cycles
}

func tick(t *testing.T, ticker *fakeTicker, cycles chan struct{}) {
	t.Helper()
	select {
	case ticker.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("poller did not accept tick")
	}
	select {
	case <-cycles:
	case <-time.After(time.Second):
		t.Fatal("work did not run")
	}
}

func TestPollerRunsWorkPerTick(t *testing.T) {
	p, ticker, count, cycles := newCountingPoller(t)
	p.Start()

	for range 5 {
		tick(t, ticker, cycles)
	}
	assert.Equal(t, int32(5), count.Load())

	require.NoError(t, p.Stop())
	assert.True(t, ticker.stopped.Load())
}

func TestPollerStopHaltsRescheduling(t *testing.T) {
	p, ticker, count, cycles := newCountingPoller(t)
	p.Start()
	tick(t, ticker, cycles)
	require.NoError(t, p.Stop())

	// Nobody receives ticks any more.
	select {
	case ticker.ch <- time.Now():
		t.Fatal("tick accepted after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int32(1), count.Load())
}

func TestPollerStartStopIdempotent(t *testing.T) {
	p, ticker, count, cycles := newCountingPoller(t)

	require.NoError(t, p.Stop(), "stop before start")
	p.Start()
	p.Start()
	tick(t, ticker, cycles)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Close())

	// Restart after stop.
	p.Start()
	tick(t, ticker, cycles)
	require.NoError(t, p.Stop())
	assert.Equal(t, int32(2), count.Load())
}

func TestNewPollerValidation(t *testing.T) {
	_, err := NewPoller(time.Second, nil)
	assert.Error(t, err)

	p, err := NewPoller(0, func() {})
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, p.interval)
}

func TestPollerWallClock(t *testing.T) {
	var count atomic.Int32
	p, err := NewPoller(time.Millisecond, func() { count.Add(1) })
	require.NoError(t, err)

	p.Start()
	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, p.Stop())

	settled := count.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, settled, count.Load())
}
