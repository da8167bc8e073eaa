// SPDX-License-Identifier: MIT
package meter

import (
	"fmt"
	"sync"
	"time"

	applog "soundmeter/internal/log"
)

// Ticker is the part of *time.Ticker the Poller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every interval.
type TickerFunc func(interval time.Duration) Ticker

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(interval time.Duration) Ticker {
	return timeTicker{time.NewTicker(interval)}
}

// Poller calls a work function on every tick of its ticker until stopped.
// Ticks that arrive while work is running are dropped, so a slow cycle never
// queues up behind itself.
type Poller struct {
	interval  time.Duration
	work      func()
	newTicker TickerFunc

	ticker   Ticker         // Ticker that triggers work.
	doneChan chan struct{}  // Closed to signal the goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithTicker replaces the wall-clock ticker, for deterministic tests.
func WithTicker(fn TickerFunc) PollerOption {
	return func(p *Poller) { p.newTicker = fn }
}

// NewPoller returns a stopped Poller. If the interval is invalid (<= 0), it
// defaults to 16ms (~60Hz).
func NewPoller(interval time.Duration, work func(), opts ...PollerOption) (*Poller, error) {
	if work == nil {
		return nil, fmt.Errorf("poller: work function cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("Poller: Invalid interval provided, defaulting to %s", interval)
	}
	p := &Poller{interval: interval, work: work, newTicker: NewTimeTicker}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the polling goroutine. Calling Start on a running Poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Poller: Start called but already running.")
		return
	}

	p.ticker = p.newTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture locals so the goroutine never reads p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Poller: Goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C():
				// A tick and a stop can be ready together; stop wins.
				select {
				case <-doneChan:
					return
				default:
				}
				p.work()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit and waits for the cycle in flight to
// finish. It is safe to call Stop multiple times.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("Poller: Goroutine finished.")
	return nil
}

// Close implements io.Closer.
func (p *Poller) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Poller)(nil)
