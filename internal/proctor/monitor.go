package proctor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Event is a classified anomaly.
type Event struct {
	Kind model.ActivityType
	At   time.Time
}

// Lockdown toggles the client's copy, paste and context-menu suppression.
type Lockdown interface {
	SetLockdown(enabled bool) error
}

// NopLockdown accepts every request.
type NopLockdown struct{}

func (NopLockdown) SetLockdown(bool) error { return nil }

// Monitor subscribes to a Source only while enabled. Disabled, it holds no
// subscriptions and cannot emit.
type Monitor struct {
	src  Source
	lock Lockdown
	log  zerolog.Logger

	mu      sync.Mutex
	enabled bool
	emit    func(Event)
	unsubs  []func()
}

// NewMonitor creates a disabled monitor. lock may be nil.
func NewMonitor(src Source, lock Lockdown, log zerolog.Logger) *Monitor {
	if lock == nil {
		lock = NopLockdown{}
	}
	return &Monitor{
		src:  src,
		lock: lock,
		log:  log.With().Str("component", "proctor").Logger(),
	}
}

// Enable attaches to all three signal classes and engages lockdown. Each
// classified anomaly is passed to emit exactly once, without retry.
// A lockdown failure is returned but leaves the monitor enabled.
func (m *Monitor) Enable(emit func(Event)) error {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return nil
	}
	m.enabled = true
	m.emit = emit
	m.unsubs = []func(){
		m.src.Subscribe(SignalVisibility, m.handle),
		m.src.Subscribe(SignalFullscreen, m.handle),
		m.src.Subscribe(SignalBeforeUnload, m.handle),
	}
	m.mu.Unlock()

	if err := m.lock.SetLockdown(true); err != nil {
		return apperror.ProctoringSignal("proctor.lockdown", err)
	}
	return nil
}

// Disable detaches every subscription and releases lockdown. Idempotent.
func (m *Monitor) Disable() {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = false
	m.emit = nil
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if err := m.lock.SetLockdown(false); err != nil {
		m.log.Debug().Err(err).Msg("Failed to release lockdown")
	}
}

// Enabled reports whether the monitor is attached.
func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Monitor) handle(s Signal) {
	kind, ok := Classify(s)
	if !ok {
		return
	}

	m.mu.Lock()
	emit := m.emit
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled || emit == nil {
		return
	}
	emit(Event{Kind: kind, At: s.At})
}

// Classify maps a raw signal to an anomaly kind. Signals that are not
// anomalies (becoming visible, entering fullscreen) report false.
func Classify(s Signal) (model.ActivityType, bool) {
	switch s.Type {
	case SignalVisibility:
		if s.Hidden {
			return model.ActivityVisibilityHidden, true
		}
	case SignalFullscreen:
		if !s.Fullscreen {
			return model.ActivityFullscreenExit, true
		}
	case SignalBeforeUnload:
		return model.ActivityBrowserUnload, true
	}
	return "", false
}
