// Package timer implements the exam countdown. Remaining time is always
// derived from an absolute deadline, so a host that stops delivering ticks
// for a while (a suspended tab, a dropped connection) still sees the
// correct time once ticks resume.
package timer

import (
	"errors"
	"math"
	"sync"
	"time"
)

// Resolution is the tick interval of a countdown.
const Resolution = time.Second

var (
	ErrRunning         = errors.New("countdown already started")
	ErrStopped         = errors.New("countdown already stopped")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Option configures a Countdown.
type Option func(*Countdown)

// OnTick registers a callback invoked with the remaining time on every tick
// before expiry.
func OnTick(fn func(remaining time.Duration)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// Countdown fires an expiry callback exactly once when its deadline passes.
type Countdown struct {
	clock  Clock
	onTick func(time.Duration)

	mu       sync.Mutex
	deadline time.Time
	started  bool
	done     bool
	stop     chan struct{}
}

// New creates an idle countdown on clock.
func New(clock Clock, opts ...Option) *Countdown {
	c := &Countdown{clock: clock}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins counting down durationMinutes from now.
func (c *Countdown) Start(durationMinutes int, onExpire func()) error {
	if durationMinutes <= 0 {
		return ErrInvalidDuration
	}
	return c.StartUntil(c.clock.Now().Add(time.Duration(durationMinutes)*time.Minute), onExpire)
}

// StartUntil begins counting down to an absolute deadline. A deadline that
// has already passed expires immediately.
func (c *Countdown) StartUntil(deadline time.Time, onExpire func()) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrRunning
	}
	if c.done {
		c.mu.Unlock()
		return ErrStopped
	}
	c.started = true
	c.deadline = deadline
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	if !c.clock.Now().Before(deadline) {
		go c.expire(onExpire)
		return nil
	}

	ticker := c.clock.NewTicker(Resolution)
	go c.run(ticker, stop, onExpire)
	return nil
}

func (c *Countdown) run(ticker Ticker, stop <-chan struct{}, onExpire func()) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			remaining := c.Remaining()
			if remaining <= 0 {
				c.expire(onExpire)
				return
			}
			if c.onTick != nil && c.isRunning() {
				c.onTick(remaining)
			}
		}
	}
}

func (c *Countdown) expire(onExpire func()) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

func (c *Countdown) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.done
}

// Cancel stops the countdown without firing the expiry callback.
// It is safe to call more than once and after expiry.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.done {
		c.done = true
		return
	}
	c.done = true
	close(c.stop)
}

// Deadline returns the absolute deadline, zero before Start.
func (c *Countdown) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Remaining returns the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	deadline, started := c.deadline, c.started
	c.mu.Unlock()
	if !started {
		return 0
	}
	if d := deadline.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// RemainingSeconds returns Remaining rounded up to whole seconds.
func (c *Countdown) RemainingSeconds() int {
	return int(math.Ceil(c.Remaining().Seconds()))
}

// Expired reports whether the countdown has fired or been cancelled.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
