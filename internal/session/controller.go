// Package session runs one student's exam attempt: question layout,
// countdown, proctoring and submission, as a single state machine.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/proctor"
	"github.com/stemsi/exstem-cbt/internal/scoring"
	"github.com/stemsi/exstem-cbt/internal/shuffle"
	"github.com/stemsi/exstem-cbt/internal/timer"
)

const defaultActivityTimeout = 5 * time.Second

// Controller owns the state of a single attempt. All methods are safe for
// concurrent use; collaborators and the observer are always called without
// the internal lock held.
type Controller struct {
	userID int
	exam   model.ExamConfig
	deps   Deps
	log    zerolog.Logger

	monitor   *proctor.Monitor
	countdown *timer.Countdown
	resume    *model.Progress

	activityTimeout time.Duration

	// ctx scopes work the controller starts on its own (expiry submission,
	// activity logging). Abandon cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	phase       Phase
	starting    bool
	closed      bool
	questions   []model.Question
	layouts     [][]shuffle.DisplayOption
	index       map[uuid.UUID]int
	answers     map[uuid.UUID]model.OptionLabel
	flagged     map[uuid.UUID]bool
	current     int
	flags       int
	confirmOpen bool
	loadErr     error
	records     []model.AnswerRecord
	reason      FinishReason
	inFlight    bool
	submitErr   error
	result      *model.Result
}

// NewController prepares an attempt for userID on exam. Nothing happens
// until Start.
func NewController(userID int, exam model.ExamConfig, deps Deps, opts ...Option) *Controller {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Shuffler == nil {
		deps.Shuffler = shuffle.New()
	}
	if deps.Clock == nil {
		deps.Clock = timer.System()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		userID:          userID,
		exam:            exam,
		deps:            deps,
		log:             deps.Log,
		activityTimeout: defaultActivityTimeout,
		ctx:             ctx,
		cancel:          cancel,
		phase:           PhaseNotStarted,
		answers:         make(map[uuid.UUID]model.OptionLabel),
		flagged:         make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.monitor = proctor.NewMonitor(deps.Signals, deps.Lockdown, c.log)
	c.countdown = timer.New(deps.Clock, timer.OnTick(c.onTick))
	return c
}

// UserID returns the attempt's owner.
func (c *Controller) UserID() int { return c.userID }

// Exam returns the exam configuration.
func (c *Controller) Exam() model.ExamConfig { return c.exam }

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Start fetches the question set, lays it out, requests fullscreen and
// begins the countdown and proctoring. A failed fetch leaves the controller
// in NOT_STARTED with a retryable error; calling Start again retries.
// A fullscreen denial is logged and does not stop the attempt.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.phase != PhaseNotStarted || c.starting:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	questions, err := c.deps.Data.FetchQuestions(ctx, c.exam.ID)
	if err == nil && len(questions) == 0 {
		err = apperror.NotFound("session.fetch_questions", ErrNoQuestions)
	}
	if err != nil {
		c.mu.Lock()
		c.starting = false
		c.loadErr = err
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("Failed to load questions")
		c.notifyPhase()
		return fmt.Errorf("fetch questions: %w", err)
	}

	ordered, layouts := c.layout(questions)

	c.mu.Lock()
	if c.closed {
		c.starting = false
		c.mu.Unlock()
		return ErrClosed
	}
	c.questions = ordered
	c.layouts = layouts
	c.index = make(map[uuid.UUID]int, len(ordered))
	for i, q := range ordered {
		c.index[q.ID] = i
	}
	c.restoreProgress()
	c.loadErr = nil
	c.phase = PhaseFullscreenPending
	c.mu.Unlock()
	c.notifyPhase()

	if err := c.deps.Host.RequestFullscreen(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Fullscreen request denied, continuing without fullscreen")
	}

	deadline := c.deps.Clock.Now().Add(time.Duration(c.exam.DurationMinutes) * time.Minute)
	if c.resume != nil && !c.resume.Deadline.IsZero() {
		deadline = c.resume.Deadline
	}

	c.mu.Lock()
	c.starting = false
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.phase = PhaseActive
	c.mu.Unlock()

	if err := c.monitor.Enable(c.onAnomaly); err != nil {
		c.log.Warn().Err(err).Msg("Clipboard lockdown rejected")
	}
	if err := c.countdown.StartUntil(deadline, c.onExpire); err != nil {
		return fmt.Errorf("start countdown: %w", err)
	}

	if c.deps.Autosave != nil {
		if err := c.deps.Autosave.SaveLayout(ctx, c.userID, c.exam.ID, deadline, c.Layout()); err != nil {
			c.log.Warn().Err(err).Msg("Failed to autosave layout")
		}
	}

	c.log.Info().
		Int("questions", len(ordered)).
		Time("deadline", deadline).
		Bool("resumed", c.resume != nil).
		Msg("Exam session started")
	c.notifyPhase()
	return nil
}

// layout orders questions and options. A resumed attempt reuses its saved
// layout; questions missing from it are appended in fresh order.
func (c *Controller) layout(questions []model.Question) ([]model.Question, [][]shuffle.DisplayOption) {
	if c.resume == nil || len(c.resume.Layout) == 0 {
		ordered := c.deps.Shuffler.Sequence(questions, c.exam.ShuffleQuestions)
		layouts := make([][]shuffle.DisplayOption, len(ordered))
		for i, q := range ordered {
			layouts[i] = c.deps.Shuffler.OptionOrder(q, c.exam.ShuffleOptions)
		}
		return ordered, layouts
	}

	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var (
		ordered []model.Question
		layouts [][]shuffle.DisplayOption
		used    = make(map[uuid.UUID]bool, len(questions))
	)
	for _, saved := range c.resume.Layout {
		q, ok := byID[saved.QuestionID]
		if !ok || used[q.ID] {
			continue
		}
		opts := shuffle.Display(q, saved.OptionOrder)
		if len(opts) != len(q.Options) {
			opts = c.deps.Shuffler.OptionOrder(q, c.exam.ShuffleOptions)
		}
		used[q.ID] = true
		ordered = append(ordered, q)
		layouts = append(layouts, opts)
	}

	var rest []model.Question
	for _, q := range questions {
		if !used[q.ID] {
			rest = append(rest, q)
		}
	}
	for _, q := range c.deps.Shuffler.Sequence(rest, c.exam.ShuffleQuestions) {
		ordered = append(ordered, q)
		layouts = append(layouts, c.deps.Shuffler.OptionOrder(q, c.exam.ShuffleOptions))
	}
	return ordered, layouts
}

// restoreProgress copies resumed answers and flags. Caller holds c.mu.
func (c *Controller) restoreProgress() {
	if c.resume == nil {
		return
	}
	for id, l := range c.resume.Answers {
		if pos, ok := c.index[id]; ok && c.questions[pos].HasOption(l) {
			c.answers[id] = l
		}
	}
	for id, f := range c.resume.Flags {
		if _, ok := c.index[id]; ok && f {
			c.flagged[id] = true
		}
	}
}

// Layout returns the attempt's question order with each option order,
// expressed as original labels.
func (c *Controller) Layout() []model.QuestionLayout {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.QuestionLayout, len(c.questions))
	for i, q := range c.questions {
		out[i] = model.QuestionLayout{QuestionID: q.ID, OptionOrder: shuffle.Originals(c.layouts[i])}
	}
	return out
}

// SelectAnswer records the option shown under displayLabel for questionID.
// The stored value is the option's original label. While suspended or
// finishing the call is ignored.
func (c *Controller) SelectAnswer(ctx context.Context, questionID uuid.UUID, displayLabel model.OptionLabel) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.phase {
	case PhaseSuspended, PhaseSubmitting, PhaseCompleted:
		c.mu.Unlock()
		return nil
	case PhaseActive:
	default:
		c.mu.Unlock()
		return ErrNotActive
	}

	pos, ok := c.index[questionID]
	if !ok {
		c.mu.Unlock()
		return apperror.Validation("session.select_answer", "unknown question %s", questionID)
	}
	var original model.OptionLabel
	for _, o := range c.layouts[pos] {
		if o.Label == displayLabel {
			original = o.Original
			break
		}
	}
	if original == "" {
		c.mu.Unlock()
		return apperror.Validation("session.select_answer", "option %q is not shown for question %s", displayLabel, questionID)
	}
	c.answers[questionID] = original
	c.mu.Unlock()

	if c.deps.Autosave != nil {
		if err := c.deps.Autosave.SaveAnswer(ctx, c.userID, c.exam.ID, questionID, original); err != nil {
			c.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("Failed to autosave answer")
		}
	}
	return nil
}

// ToggleFlag marks or unmarks a question for review and returns the new
// flag. Ignored outside ACTIVE once questions are loaded.
func (c *Controller) ToggleFlag(ctx context.Context, questionID uuid.UUID) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.questions == nil {
		c.mu.Unlock()
		return false, ErrNotActive
	}
	if _, ok := c.index[questionID]; !ok {
		c.mu.Unlock()
		return false, apperror.Validation("session.toggle_flag", "unknown question %s", questionID)
	}
	if c.phase != PhaseActive {
		flagged := c.flagged[questionID]
		c.mu.Unlock()
		return flagged, nil
	}
	flagged := !c.flagged[questionID]
	if flagged {
		c.flagged[questionID] = true
	} else {
		delete(c.flagged, questionID)
	}
	c.mu.Unlock()

	if c.deps.Autosave != nil {
		if err := c.deps.Autosave.SaveFlag(ctx, c.userID, c.exam.ID, questionID, flagged); err != nil {
			c.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("Failed to autosave flag")
		}
	}
	return flagged, nil
}

// NavigateTo moves to a 0-based position, clamped to the question range,
// and returns the position actually selected.
func (c *Controller) NavigateTo(index int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if len(c.questions) == 0 {
		return 0, ErrNotActive
	}
	c.current = max(0, min(index, len(c.questions)-1))
	return c.current, nil
}

// RequestFinish opens the confirmation gate and returns a preview. It does
// not submit.
func (c *Controller) RequestFinish() (Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Preview{}, ErrClosed
	}
	if c.phase != PhaseActive {
		return Preview{}, ErrNotActive
	}
	c.confirmOpen = true

	p := Preview{Total: len(c.questions), Unanswered: []int{}, Flagged: []int{}}
	for i, q := range c.questions {
		if _, ok := c.answers[q.ID]; ok {
			p.Answered++
		} else {
			p.Unanswered = append(p.Unanswered, i+1)
		}
		if c.flagged[q.ID] {
			p.Flagged = append(p.Flagged, i+1)
		}
	}
	return p, nil
}

// CancelFinish closes the confirmation gate.
func (c *Controller) CancelFinish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmOpen = false
}

// ConfirmFinish submits after RequestFinish opened the gate.
func (c *Controller) ConfirmFinish(ctx context.Context) (*model.Result, error) {
	c.mu.Lock()
	open := c.confirmOpen
	c.mu.Unlock()
	if !open {
		return nil, ErrConfirmationRequired
	}
	return c.finish(ctx, FinishUser)
}

// ForceSubmit submits immediately from ACTIVE or SUSPENDED, for terminal
// external failures.
func (c *Controller) ForceSubmit(ctx context.Context) (*model.Result, error) {
	return c.finish(ctx, FinishForced)
}

// RetrySubmit resends the frozen answer set after a failed submission.
func (c *Controller) RetrySubmit(ctx context.Context) (*model.Result, error) {
	return c.submit(ctx)
}

// ReenterFullscreen resumes a suspended attempt once the host confirms
// fullscreen.
func (c *Controller) ReenterFullscreen(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseSuspended {
		c.mu.Unlock()
		return ErrNotSuspended
	}
	c.mu.Unlock()

	if err := c.deps.Host.RequestFullscreen(ctx); err != nil {
		return apperror.ProctoringSignal("session.reenter_fullscreen", err)
	}

	c.mu.Lock()
	resumed := c.phase == PhaseSuspended
	if resumed {
		c.phase = PhaseActive
	}
	c.mu.Unlock()

	if resumed {
		c.log.Info().Msg("Fullscreen restored, session resumed")
		c.notifyPhase()
	}
	return nil
}

// finish moves ACTIVE or SUSPENDED into SUBMITTING and submits. The phase
// changes before fullscreen is released, so the exit that follows is not
// counted as an anomaly.
func (c *Controller) finish(ctx context.Context, reason FinishReason) (*model.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.phase != PhaseActive && c.phase != PhaseSuspended {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	c.phase = PhaseSubmitting
	c.confirmOpen = false
	c.reason = reason
	c.records = c.buildRecords()
	c.mu.Unlock()

	c.log.Info().Str("reason", string(reason)).Msg("Finishing exam session")
	c.notifyPhase()

	c.countdown.Cancel()
	c.monitor.Disable()
	if err := c.deps.Host.ExitFullscreen(ctx); err != nil {
		c.log.Debug().Err(err).Msg("Failed to exit fullscreen")
	}

	return c.submit(ctx)
}

// buildRecords freezes one record per question in session order. Caller
// holds c.mu.
func (c *Controller) buildRecords() []model.AnswerRecord {
	records := make([]model.AnswerRecord, len(c.questions))
	for i, q := range c.questions {
		records[i] = model.AnswerRecord{QuestionID: q.ID}
		if l, ok := c.answers[q.ID]; ok {
			sel := l
			records[i].Selected = &sel
		}
	}
	return records
}

func (c *Controller) submit(ctx context.Context) (*model.Result, error) {
	c.mu.Lock()
	switch {
	case c.phase == PhaseCompleted && c.result != nil:
		res := *c.result
		c.mu.Unlock()
		return &res, nil
	case c.phase != PhaseSubmitting:
		c.mu.Unlock()
		return nil, ErrNotSubmitting
	case c.inFlight:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.inFlight = true
	records := make([]model.AnswerRecord, len(c.records))
	copy(records, c.records)
	questions := c.questions
	c.mu.Unlock()

	res, err := c.deps.Data.SubmitResult(ctx, c.userID, c.exam.ID, records)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.submitErr = err
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Failed to submit result")
		c.notifyPhase()
		return nil, fmt.Errorf("submit result: %w", err)
	}
	c.submitErr = nil
	c.result = res
	c.phase = PhaseCompleted
	c.mu.Unlock()

	if local := scoring.Score(questions, records); !scoring.Equivalent(local, *res) {
		c.log.Warn().
			Float64("local_score", local.Score).
			Float64("stored_score", res.Score).
			Msg("Stored result differs from local scoring")
	}

	c.log.Info().
		Int("correct", res.Correct).
		Int("incorrect", res.Incorrect).
		Int("unanswered", res.Unanswered).
		Float64("score", res.Score).
		Msg("Exam session completed")

	c.deps.Observer.Completed(*res)
	c.notifyPhase()
	out := *res
	return &out, nil
}

func (c *Controller) onExpire() {
	c.log.Info().Msg("Time limit reached")
	if _, err := c.finish(c.ctx, FinishTimeout); err != nil {
		c.log.Debug().Err(err).Msg("Expiry submission did not complete")
	}
}

func (c *Controller) onTick(remaining time.Duration) {
	switch c.Phase() {
	case PhaseActive, PhaseSuspended:
		c.deps.Observer.Tick(remaining)
	}
}

// onAnomaly counts an anomaly and forwards it to the activity log. A
// fullscreen exit while ACTIVE suspends the attempt. Anything arriving
// once submission has begun is ignored.
func (c *Controller) onAnomaly(e proctor.Event) {
	c.mu.Lock()
	if c.closed || (c.phase != PhaseActive && c.phase != PhaseSuspended) {
		c.mu.Unlock()
		return
	}
	c.flags++
	flags := c.flags
	suspended := false
	if e.Kind == model.ActivityFullscreenExit && c.phase == PhaseActive {
		c.phase = PhaseSuspended
		c.confirmOpen = false
		suspended = true
	}
	c.mu.Unlock()

	c.log.Warn().Str("kind", string(e.Kind)).Int("flags", flags).Msg("Proctoring anomaly")
	go c.logActivity(e.Kind)

	c.deps.Observer.Anomaly(e.Kind, flags)
	if suspended {
		c.notifyPhase()
	}
}

func (c *Controller) logActivity(kind model.ActivityType) {
	if c.deps.Activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.activityTimeout)
	defer cancel()
	if err := c.deps.Activity.LogActivity(ctx, c.userID, c.exam.ID, kind); err != nil {
		c.log.Debug().Err(err).Str("kind", string(kind)).Msg("Activity log dropped")
	}
}

// Abandon tears down the countdown and proctoring without submitting.
// The controller rejects further operations.
func (c *Controller) Abandon() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	phase := c.phase
	c.mu.Unlock()

	c.countdown.Cancel()
	c.monitor.Disable()
	c.cancel()
	c.log.Info().Str("phase", string(phase)).Msg("Exam session abandoned")
}

// Closed reports whether Abandon was called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// State returns a snapshot for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Phase:           c.phase,
		ExamID:          c.exam.ID,
		Title:           c.exam.Title,
		Total:           len(c.questions),
		Current:         c.current,
		Questions:       make([]QuestionStatus, len(c.questions)),
		ProctoringFlags: c.flags,
		ConfirmOpen:     c.confirmOpen,
		FinishReason:    c.reason,
	}

	for i, q := range c.questions {
		_, answered := c.answers[q.ID]
		if answered {
			s.Answered++
		}
		s.Questions[i] = QuestionStatus{Position: i + 1, ID: q.ID, Answered: answered, Flagged: c.flagged[q.ID]}
	}

	if len(c.questions) > 0 {
		q := c.questions[c.current]
		view := &QuestionView{
			ID:       q.ID,
			Position: c.current + 1,
			Prompt:   q.Prompt,
			Media:    q.Media,
			Options:  c.layouts[c.current],
			Flagged:  c.flagged[q.ID],
		}
		if orig, ok := c.answers[q.ID]; ok {
			for _, o := range view.Options {
				if o.Original == orig {
					l := o.Label
					view.Selected = &l
					break
				}
			}
		}
		s.Question = view
	}

	switch c.phase {
	case PhaseNotStarted, PhaseFullscreenPending:
		s.RemainingSeconds = c.exam.DurationMinutes * 60
		if c.resume != nil && !c.resume.Deadline.IsZero() {
			s.RemainingSeconds = max(0, int(c.resume.Deadline.Sub(c.deps.Clock.Now()).Seconds()))
		}
	case PhaseSubmitting, PhaseCompleted:
		s.RemainingSeconds = 0
	default:
		s.RemainingSeconds = c.countdown.RemainingSeconds()
	}

	switch {
	case c.loadErr != nil:
		s.Error = c.loadErr.Error()
		s.Retryable = apperror.Retryable(c.loadErr)
	case c.submitErr != nil:
		s.Error = c.submitErr.Error()
		s.Retryable = true
	}

	if c.result != nil {
		res := *c.result
		s.Result = &res
	}
	return s
}

func (c *Controller) notifyPhase() {
	c.deps.Observer.PhaseChanged(c.State())
}
