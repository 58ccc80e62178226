package session

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/shuffle"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseNotStarted        Phase = "NOT_STARTED"
	PhaseFullscreenPending Phase = "FULLSCREEN_PENDING"
	PhaseActive            Phase = "ACTIVE"
	PhaseSuspended         Phase = "SUSPENDED"
	PhaseSubmitting        Phase = "SUBMITTING"
	PhaseCompleted         Phase = "COMPLETED"
)

// FinishReason records what moved the attempt into submission.
type FinishReason string

const (
	FinishUser    FinishReason = "user"
	FinishTimeout FinishReason = "timeout"
	FinishForced  FinishReason = "forced"
)

// QuestionView is the current question as the student sees it. Selected is
// a display label.
type QuestionView struct {
	ID       uuid.UUID               `json:"id"`
	Position int                     `json:"position"`
	Prompt   string                  `json:"prompt"`
	Media    []model.Media           `json:"media,omitempty"`
	Options  []shuffle.DisplayOption `json:"options"`
	Selected *model.OptionLabel      `json:"selected"`
	Flagged  bool                    `json:"flagged"`
}

// QuestionStatus is one entry of the navigation grid.
type QuestionStatus struct {
	Position int       `json:"position"`
	ID       uuid.UUID `json:"id"`
	Answered bool      `json:"answered"`
	Flagged  bool      `json:"flagged"`
}

// Preview summarizes the attempt before the student confirms finishing.
// Positions are 1-based.
type Preview struct {
	Total      int   `json:"total"`
	Answered   int   `json:"answered"`
	Unanswered []int `json:"unanswered"`
	Flagged    []int `json:"flagged"`
}

// State is a point-in-time view of a controller.
type State struct {
	Phase            Phase            `json:"phase"`
	ExamID           uuid.UUID        `json:"exam_id"`
	Title            string           `json:"title"`
	Total            int              `json:"total"`
	Current          int              `json:"current"`
	Question         *QuestionView    `json:"question,omitempty"`
	Questions        []QuestionStatus `json:"questions"`
	Answered         int              `json:"answered"`
	RemainingSeconds int              `json:"remaining_seconds"`
	ProctoringFlags  int              `json:"proctoring_flags"`
	ConfirmOpen      bool             `json:"confirm_open"`
	FinishReason     FinishReason     `json:"finish_reason,omitempty"`
	Error            string           `json:"error,omitempty"`
	Retryable        bool             `json:"retryable,omitempty"`
	Result           *model.Result    `json:"result,omitempty"`
}
