// Package timertest provides a manually driven clock for countdown tests.
package timertest

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-cbt/internal/timer"
)

// Clock is a fake timer.Clock. Time only moves when Advance is called.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*ticker]struct{}
}

// NewClock returns a Clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, tickers: make(map[*ticker]struct{})}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NewTicker(d time.Duration) timer.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ticker{clock: c, ch: make(chan time.Time, 1)}
	c.tickers[t] = struct{}{}
	return t
}

// Advance moves time forward by d and delivers one tick to every live
// ticker. A tick is dropped if the previous one has not been consumed,
// like a real time.Ticker.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	live := make([]*ticker, 0, len(c.tickers))
	for t := range c.tickers {
		live = append(live, t)
	}
	c.mu.Unlock()

	for _, t := range live {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// Set jumps to an absolute time without ticking.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Tickers returns the number of tickers not yet stopped.
func (c *Clock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type ticker struct {
	clock *Clock
	ch    chan time.Time
}

func (t *ticker) C() <-chan time.Time { return t.ch }

func (t *ticker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t)
}
