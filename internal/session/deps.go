package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/proctor"
	"github.com/stemsi/exstem-cbt/internal/shuffle"
	"github.com/stemsi/exstem-cbt/internal/timer"
)

// ExamDataService is the exam store the controller reads questions from and
// submits answers to.
type ExamDataService interface {
	// FetchQuestions fails with a NotFound or Network error.
	FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	// SubmitResult must be safe to retry with identical input.
	SubmitResult(ctx context.Context, userID int, examID uuid.UUID, answers []model.AnswerRecord) (*model.Result, error)
}

// ActivityLogger records proctoring anomalies. Failures are never surfaced.
type ActivityLogger interface {
	LogActivity(ctx context.Context, userID int, examID uuid.UUID, kind model.ActivityType) error
}

// Autosaver persists in-flight progress so an attempt can resume after a
// reconnect.
type Autosaver interface {
	SaveLayout(ctx context.Context, userID int, examID uuid.UUID, deadline time.Time, layout []model.QuestionLayout) error
	SaveAnswer(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, selected model.OptionLabel) error
	SaveFlag(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, flagged bool) error
}

// Host is the client surface that owns fullscreen.
type Host interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Observer receives controller notifications. Calls are made without the
// controller's lock held and may come from any goroutine.
type Observer interface {
	PhaseChanged(s State)
	Tick(remaining time.Duration)
	Anomaly(kind model.ActivityType, flags int)
	Completed(r model.Result)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) PhaseChanged(State)              {}
func (NopObserver) Tick(time.Duration)              {}
func (NopObserver) Anomaly(model.ActivityType, int) {}
func (NopObserver) Completed(model.Result)          {}

// Deps bundles a controller's collaborators. Autosave, Lockdown, Observer,
// Shuffler and Clock are optional.
type Deps struct {
	Data     ExamDataService
	Activity ActivityLogger
	Autosave Autosaver
	Host     Host
	Signals  proctor.Source
	Lockdown proctor.Lockdown
	Observer Observer
	Shuffler *shuffle.Shuffler
	Clock    timer.Clock
	Log      zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithResume restores a previously started attempt: its deadline, layout,
// answers and flags.
func WithResume(p *model.Progress) Option {
	return func(c *Controller) { c.resume = p }
}

// WithActivityTimeout bounds each best-effort activity log call.
func WithActivityTimeout(d time.Duration) Option {
	return func(c *Controller) { c.activityTimeout = d }
}
