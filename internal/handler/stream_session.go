package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/session"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

var (
	errAckTimeout   = errors.New("client did not acknowledge the fullscreen command")
	errStreamClosed = errors.New("exam stream closed")
)

// streamSession is the browser as seen through one exam stream. It sends
// fullscreen and lockdown commands, waits for the client's acknowledgement
// where needed, and pushes controller notifications as events.
type streamSession struct {
	conn       *ws.Conn
	ackTimeout time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan error

	done      chan struct{}
	closeOnce sync.Once
}

func newStreamSession(conn *ws.Conn, ackTimeout time.Duration, log zerolog.Logger) *streamSession {
	return &streamSession{
		conn:       conn,
		ackTimeout: ackTimeout,
		log:        log,
		pending:    make(map[string]chan error),
		done:       make(chan struct{}),
	}
}

// RequestFullscreen asks the client to enter fullscreen and waits for it to
// report the outcome.
func (s *streamSession) RequestFullscreen(ctx context.Context) error {
	id := uuid.NewString()
	ack := make(chan error, 1)

	s.mu.Lock()
	s.pending[id] = ack
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.conn.WriteTyped(ws.CommandResponse{
		Event:     ws.EventCommand,
		CommandID: id,
		Command:   ws.CommandRequestFullscreen,
	}); err != nil {
		return err
	}

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return errAckTimeout
	case <-s.done:
		return errStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitFullscreen tells the client to leave fullscreen. No reply is expected.
func (s *streamSession) ExitFullscreen(ctx context.Context) error {
	select {
	case <-s.done:
		return errStreamClosed
	default:
	}
	return s.conn.WriteTyped(ws.CommandResponse{Event: ws.EventCommand, Command: ws.CommandExitFullscreen})
}

// SetLockdown toggles clipboard and context-menu blocking on the client.
func (s *streamSession) SetLockdown(enabled bool) error {
	select {
	case <-s.done:
		return errStreamClosed
	default:
	}
	return s.conn.WriteTyped(ws.CommandResponse{Event: ws.EventCommand, Command: ws.CommandLockdown, Enabled: &enabled})
}

// resolve delivers a fullscreen_result to the command waiting for it.
func (s *streamSession) resolve(commandID string, ok bool, reason string) {
	s.mu.Lock()
	ack, found := s.pending[commandID]
	s.mu.Unlock()
	if !found {
		s.log.Debug().Str("command_id", commandID).Msg("Acknowledgement for unknown command")
		return
	}

	var err error
	if !ok {
		if reason == "" {
			reason = "denied"
		}
		err = fmt.Errorf("fullscreen rejected by client: %s", reason)
	}
	select {
	case ack <- err:
	default:
	}
}

// close releases every waiting command.
func (s *streamSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *streamSession) send(v interface{}) {
	select {
	case <-s.done:
		return
	default:
	}
	if err := s.conn.WriteTyped(v); err != nil {
		s.log.Debug().Err(err).Msg("Failed to push event")
	}
}

// ─── session.Observer ───────────────────────────────────────────────

func (s *streamSession) PhaseChanged(st session.State) {
	s.send(ws.StateResponse{Event: ws.EventState, State: st})
}

func (s *streamSession) Tick(remaining time.Duration) {
	s.send(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: int(math.Ceil(remaining.Seconds()))})
}

func (s *streamSession) Anomaly(kind model.ActivityType, flags int) {
	s.send(ws.AnomalyResponse{Event: ws.EventAnomaly, Kind: kind, Flags: flags})
}

func (s *streamSession) Completed(r model.Result) {
	s.send(ws.CompletedResponse{Event: ws.EventCompleted, Result: r})
}
