package websocket

import (
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart             Action = "start"
	ActionAnswer            Action = "answer"
	ActionFlag              Action = "flag"
	ActionNavigate          Action = "navigate"
	ActionRequestFinish     Action = "request_finish"
	ActionCancelFinish      Action = "cancel_finish"
	ActionConfirmFinish     Action = "confirm_finish"
	ActionRetrySubmit       Action = "retry_submit"
	ActionReenterFullscreen Action = "reenter_fullscreen"
	ActionSignal            Action = "signal"
	ActionFullscreenResult  Action = "fullscreen_result"
	ActionPing              Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects an option by the label currently displayed.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Label      string `json:"label" binding:"required,option_label"`
}

// FlagRequest toggles a question's review flag.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" binding:"required,uuid"`
}

// NavigateRequest moves to a zero-based question index.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required"`
}

// SignalRequest forwards a browser proctoring signal.
type SignalRequest struct {
	Action     Action `json:"action"`
	Type       string `json:"type" binding:"required,oneof=visibilitychange fullscreenchange beforeunload"`
	Hidden     bool   `json:"hidden"`
	Fullscreen bool   `json:"fullscreen"`
}

// FullscreenResultRequest reports how the browser handled a command.
type FullscreenResultRequest struct {
	Action    Action `json:"action"`
	CommandID string `json:"command_id" binding:"required"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventAnomaly   Event = "anomaly"
	EventCommand   Event = "command"
	EventPreview   Event = "preview"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// Command names a browser capability the client must exercise.
type Command string

const (
	CommandRequestFullscreen Command = "request_fullscreen"
	CommandExitFullscreen    Command = "exit_fullscreen"
	CommandLockdown          Command = "lockdown"
)

type StateResponse struct {
	Event Event         `json:"event"`
	State session.State `json:"state"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type AnomalyResponse struct {
	Event Event              `json:"event"`
	Kind  model.ActivityType `json:"kind"`
	Flags int                `json:"flags"`
}

// CommandResponse asks the client to act. Commands with an ID expect a
// fullscreen_result reply.
type CommandResponse struct {
	Event     Event   `json:"event"`
	CommandID string  `json:"command_id,omitempty"`
	Command   Command `json:"command"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

type PreviewResponse struct {
	Event   Event           `json:"event"`
	Preview session.Preview `json:"preview"`
}

type CompletedResponse struct {
	Event  Event        `json:"event"`
	Result model.Result `json:"result"`
}

type ErrorResponse struct {
	Event     Event             `json:"event"`
	Code      string            `json:"code"`
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}
