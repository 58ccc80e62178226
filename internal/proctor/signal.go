// Package proctor watches client integrity signals during an exam and
// reports classified anomalies. It does not decide consequences.
package proctor

import (
	"sync"
	"time"
)

// SignalType is a raw client event class.
type SignalType string

const (
	SignalVisibility   SignalType = "visibilitychange"
	SignalFullscreen   SignalType = "fullscreenchange"
	SignalBeforeUnload SignalType = "beforeunload"
)

// Valid reports whether t is a known signal class.
func (t SignalType) Valid() bool {
	switch t {
	case SignalVisibility, SignalFullscreen, SignalBeforeUnload:
		return true
	}
	return false
}

// Signal is a raw client event. Hidden is meaningful for visibility
// changes, Fullscreen for fullscreen changes.
type Signal struct {
	Type       SignalType `json:"type"`
	Hidden     bool       `json:"hidden,omitempty"`
	Fullscreen bool       `json:"fullscreen,omitempty"`
	At         time.Time  `json:"at"`
}

// Source delivers raw signals to subscribers.
type Source interface {
	// Subscribe registers fn for signals of type t and returns a function
	// that removes the subscription.
	Subscribe(t SignalType, fn func(Signal)) (unsubscribe func())
}

// Hub is an in-process Source. Publish delivers synchronously on the
// caller's goroutine.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[SignalType]map[int]func(Signal)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[SignalType]map[int]func(Signal))}
}

func (h *Hub) Subscribe(t SignalType, fn func(Signal)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	if h.subs[t] == nil {
		h.subs[t] = make(map[int]func(Signal))
	}
	h.subs[t][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[t], id)
		})
	}
}

// Publish hands s to every current subscriber of its type.
func (h *Hub) Publish(s Signal) {
	h.mu.RLock()
	fns := make([]func(Signal), 0, len(h.subs[s.Type]))
	for _, fn := range h.subs[s.Type] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscribers returns the number of live subscriptions for t.
func (h *Hub) Subscribers(t SignalType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[t])
}
