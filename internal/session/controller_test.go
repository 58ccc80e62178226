package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/proctor"
	"github.com/stemsi/exstem-cbt/internal/scoring"
	"github.com/stemsi/exstem-cbt/internal/shuffle"
	"github.com/stemsi/exstem-cbt/internal/timer/timertest"
)

var t0 = time.Date(2025, 4, 14, 7, 30, 0, 0, time.UTC)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeData struct {
	mu         sync.Mutex
	questions  []model.Question
	fetchErr   error
	submitErrs []error
	submits    [][]model.AnswerRecord
	block      chan struct{}
}

func (f *fakeData) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.questions, nil
}

func (f *fakeData) SubmitResult(ctx context.Context, userID int, examID uuid.UUID, answers []model.AnswerRecord) (*model.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, answers)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	res := scoring.Score(f.questions, answers)
	res.ID = uuid.New()
	res.UserID = userID
	res.ExamID = examID
	res.SubmittedAt = t0
	return &res, nil
}

func (f *fakeData) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeHost struct {
	mu           sync.Mutex
	requestErr   error
	requests     int
	exits        int
	onExit       func()
	fullscreenOn bool
}

func (h *fakeHost) RequestFullscreen(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	if h.requestErr != nil {
		return h.requestErr
	}
	h.fullscreenOn = true
	return nil
}

func (h *fakeHost) ExitFullscreen(context.Context) error {
	h.mu.Lock()
	h.exits++
	h.fullscreenOn = false
	onExit := h.onExit
	h.mu.Unlock()
	if onExit != nil {
		onExit()
	}
	return nil
}

func (h *fakeHost) setRequestErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestErr = err
}

type fakeActivity struct {
	err    error
	logged chan model.ActivityType
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{logged: make(chan model.ActivityType, 16)}
}

func (a *fakeActivity) LogActivity(ctx context.Context, userID int, examID uuid.UUID, kind model.ActivityType) error {
	a.logged <- kind
	return a.err
}

type fakeAutosave struct {
	mu       sync.Mutex
	layout   []model.QuestionLayout
	deadline time.Time
	answers  map[uuid.UUID]model.OptionLabel
	flags    map[uuid.UUID]bool
}

func (a *fakeAutosave) SaveLayout(ctx context.Context, userID int, examID uuid.UUID, deadline time.Time, layout []model.QuestionLayout) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.layout, a.deadline = layout, deadline
	return nil
}

func (a *fakeAutosave) SaveAnswer(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, selected model.OptionLabel) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.answers == nil {
		a.answers = map[uuid.UUID]model.OptionLabel{}
	}
	a.answers[questionID] = selected
	return nil
}

func (a *fakeAutosave) SaveFlag(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, flagged bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flags == nil {
		a.flags = map[uuid.UUID]bool{}
	}
	a.flags[questionID] = flagged
	return nil
}

type recObserver struct {
	NopObserver
	mu        sync.Mutex
	phases    []Phase
	anomalies []model.ActivityType
	completed chan model.Result
}

func newRecObserver() *recObserver {
	return &recObserver{completed: make(chan model.Result, 4)}
}

func (o *recObserver) PhaseChanged(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n := len(o.phases); n == 0 || o.phases[n-1] != s.Phase {
		o.phases = append(o.phases, s.Phase)
	}
}

func (o *recObserver) Anomaly(kind model.ActivityType, flags int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.anomalies = append(o.anomalies, kind)
}

func (o *recObserver) Completed(r model.Result) { o.completed <- r }

func (o *recObserver) seen() []Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Phase(nil), o.phases...)
}

// ─── Harness ────────────────────────────────────────────────────────────────

type harness struct {
	ctrl     *Controller
	data     *fakeData
	host     *fakeHost
	activity *fakeActivity
	autosave *fakeAutosave
	observer *recObserver
	hub      *proctor.Hub
	clock    *timertest.Clock
	exam     model.ExamConfig
}

func examQuestions(keys ...model.OptionLabel) []model.Question {
	qs := make([]model.Question, len(keys))
	for i, k := range keys {
		qs[i] = model.Question{
			ID:     uuid.New(),
			Prompt: "question",
			Options: []model.Option{
				{Label: "A", Text: "opt-a"}, {Label: "B", Text: "opt-b"}, {Label: "C", Text: "opt-c"},
				{Label: "D", Text: "opt-d"}, {Label: "E", Text: "opt-e"},
			},
			CorrectOption: k,
			OrderNum:      i + 1,
		}
	}
	return qs
}

func newHarness(t *testing.T, exam model.ExamConfig, questions []model.Question, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		data:     &fakeData{questions: questions},
		host:     &fakeHost{},
		activity: newFakeActivity(),
		autosave: &fakeAutosave{},
		observer: newRecObserver(),
		hub:      proctor.NewHub(),
		clock:    timertest.NewClock(t0),
		exam:     exam,
	}
	h.ctrl = NewController(7, exam, Deps{
		Data:     h.data,
		Activity: h.activity,
		Autosave: h.autosave,
		Host:     h.host,
		Signals:  h.hub,
		Observer: h.observer,
		Shuffler: shuffle.NewSeeded(21, 34),
		Clock:    h.clock,
		Log:      zerolog.Nop(),
	}, opts...)
	t.Cleanup(h.ctrl.Abandon)
	return h
}

func defaultExam() model.ExamConfig {
	return model.ExamConfig{ID: uuid.New(), Title: "Matematika", DurationMinutes: 30, Active: true}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.ctrl.Phase(); got != PhaseActive {
		t.Fatalf("phase after Start = %s, want ACTIVE", got)
	}
}

// display returns the label a student sees for the option whose original
// label is orig.
func (h *harness) display(t *testing.T, questionID uuid.UUID, orig model.OptionLabel) model.OptionLabel {
	t.Helper()
	for _, ql := range h.ctrl.Layout() {
		if ql.QuestionID != questionID {
			continue
		}
		for i, l := range ql.OptionOrder {
			if l == orig {
				return model.CanonicalLabels[i]
			}
		}
	}
	t.Fatalf("option %s of %s not in layout", orig, questionID)
	return ""
}

func (h *harness) fullscreenExit() {
	h.hub.Publish(proctor.Signal{Type: proctor.SignalFullscreen, Fullscreen: false, At: t0})
}

func (h *harness) inFlight() bool {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	return h.ctrl.inFlight
}

// waitTickers gives a stopped countdown goroutine time to release its ticker.
func waitTickers(clock *timertest.Clock) int {
	deadline := time.Now().Add(time.Second)
	for clock.Tickers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return clock.Tickers()
}

func waitActivity(t *testing.T, a *fakeActivity, want model.ActivityType) {
	t.Helper()
	select {
	case got := <-a.logged:
		if got != want {
			t.Fatalf("logged %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("activity %s was not logged", want)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestStartEntersActive(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A", "B", "C"))
	h.start(t)

	if h.host.requests != 1 {
		t.Errorf("fullscreen requests = %d, want 1", h.host.requests)
	}
	for _, st := range []proctor.SignalType{proctor.SignalVisibility, proctor.SignalFullscreen, proctor.SignalBeforeUnload} {
		if h.hub.Subscribers(st) != 1 {
			t.Errorf("%s subscribers = %d, want 1", st, h.hub.Subscribers(st))
		}
	}

	want := []Phase{PhaseNotStarted, PhaseFullscreenPending, PhaseActive}
	if got := h.observer.seen(); !reflect.DeepEqual(got[len(got)-2:], want[1:]) {
		t.Errorf("phases = %v, want to end with %v", got, want[1:])
	}

	s := h.ctrl.State()
	if s.Total != 3 || s.RemainingSeconds != 30*60 {
		t.Errorf("state total=%d remaining=%d, want 3 and 1800", s.Total, s.RemainingSeconds)
	}
	if len(h.autosave.layout) != 3 || !h.autosave.deadline.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("layout not autosaved: %d entries, deadline %v", len(h.autosave.layout), h.autosave.deadline)
	}

	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartFetchFailureIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"network", apperror.Network("questions", errors.New("timeout")), apperror.ErrNetwork},
		{"not found", apperror.NotFound("questions", nil), apperror.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultExam(), examQuestions("A", "B"))
			h.data.fetchErr = tc.err

			err := h.ctrl.Start(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("Start = %v, want %v", err, tc.want)
			}
			s := h.ctrl.State()
			if s.Phase != PhaseNotStarted || s.Error == "" || !s.Retryable {
				t.Fatalf("state = %+v, want NOT_STARTED with retryable error", s)
			}
			if h.host.requests != 0 {
				t.Error("fullscreen requested despite failed fetch")
			}

			h.data.mu.Lock()
			h.data.fetchErr = nil
			h.data.mu.Unlock()
			h.start(t)
			if s := h.ctrl.State(); s.Error != "" || s.Total != 2 {
				t.Errorf("after retry: error=%q total=%d", s.Error, s.Total)
			}
		})
	}
}

func TestStartEmptyQuestionSetIsNotFound(t *testing.T) {
	h := newHarness(t, defaultExam(), nil)
	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, apperror.ErrNotFound) || !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("Start = %v, want not-found ErrNoQuestions", err)
	}
	if h.ctrl.Phase() != PhaseNotStarted {
		t.Errorf("phase = %s, want NOT_STARTED", h.ctrl.Phase())
	}
}

func TestStartFullscreenDenialIsNonFatal(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.host.requestErr = errors.New("permission denied")
	h.start(t)
}

// ─── Answering ──────────────────────────────────────────────────────────────

func TestFourCorrectOneBlankScoresEighty(t *testing.T) {
	qs := examQuestions("A", "B", "C", "D", "E")
	h := newHarness(t, defaultExam(), qs)
	h.start(t)

	ctx := context.Background()
	for _, q := range qs[:4] {
		if err := h.ctrl.SelectAnswer(ctx, q.ID, h.display(t, q.ID, q.CorrectOption)); err != nil {
			t.Fatalf("SelectAnswer: %v", err)
		}
	}
	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatalf("RequestFinish: %v", err)
	}
	res, err := h.ctrl.ConfirmFinish(ctx)
	if err != nil {
		t.Fatalf("ConfirmFinish: %v", err)
	}

	if res.Correct != 4 || res.Incorrect != 0 || res.Unanswered != 1 || res.Score != 80 {
		t.Errorf("result = %d/%d/%d score %v, want 4/0/1 score 80", res.Correct, res.Incorrect, res.Unanswered, res.Score)
	}
	if len(res.Answers) != len(qs) {
		t.Errorf("answer records = %d, want %d", len(res.Answers), len(qs))
	}
	if h.ctrl.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want COMPLETED", h.ctrl.Phase())
	}
	if h.host.exits != 1 {
		t.Errorf("fullscreen exits = %d, want 1", h.host.exits)
	}
	if n := waitTickers(h.clock); n != 0 {
		t.Errorf("%d tickers still running after completion", n)
	}
	if n := h.hub.Subscribers(proctor.SignalFullscreen); n != 0 {
		t.Errorf("%d fullscreen subscribers after completion", n)
	}
}

func TestShuffledOptionsScoreByOriginalLabel(t *testing.T) {
	exam := defaultExam()
	exam.ShuffleQuestions = true
	exam.ShuffleOptions = true
	qs := examQuestions("B", "D", "A", "E", "C", "B")
	h := newHarness(t, exam, qs)
	h.start(t)

	ctx := context.Background()
	moved := false
	for _, q := range qs {
		shown := h.display(t, q.ID, q.CorrectOption)
		if shown != q.CorrectOption {
			moved = true
		}
		if err := h.ctrl.SelectAnswer(ctx, q.ID, shown); err != nil {
			t.Fatalf("SelectAnswer: %v", err)
		}
	}
	if !moved {
		t.Fatal("option shuffle left every correct option in place; pick another seed")
	}

	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatalf("RequestFinish: %v", err)
	}
	res, err := h.ctrl.ConfirmFinish(ctx)
	if err != nil {
		t.Fatalf("ConfirmFinish: %v", err)
	}
	if res.Correct != len(qs) || res.Score != 100 {
		t.Errorf("result = %+v, want all correct", res)
	}
}

func TestDisplayedLabelBIsNotPositional(t *testing.T) {
	exam := defaultExam()
	exam.ShuffleOptions = true
	qs := examQuestions("A")
	h := newHarness(t, exam, qs)
	h.start(t)

	// Whatever sits under display "B" is what gets stored.
	orig := h.ctrl.Layout()[0].OptionOrder[1]
	if err := h.ctrl.SelectAnswer(context.Background(), qs[0].ID, "B"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatalf("RequestFinish: %v", err)
	}
	res, err := h.ctrl.ConfirmFinish(context.Background())
	if err != nil {
		t.Fatalf("ConfirmFinish: %v", err)
	}
	if got := *res.Answers[0].Selected; got != orig {
		t.Errorf("stored %s, want original %s", got, orig)
	}
	if (res.Correct == 1) != (orig == "A") {
		t.Errorf("correct=%d for original %s", res.Correct, orig)
	}
	if h.autosave.answers[qs[0].ID] != orig {
		t.Errorf("autosaved %s, want %s", h.autosave.answers[qs[0].ID], orig)
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	qs := examQuestions("A")
	qs[0].Options = qs[0].Options[:4]
	h := newHarness(t, defaultExam(), qs)

	if err := h.ctrl.SelectAnswer(context.Background(), qs[0].ID, "A"); !errors.Is(err, ErrNotActive) {
		t.Errorf("before start = %v, want ErrNotActive", err)
	}
	h.start(t)

	tests := []struct {
		name  string
		id    uuid.UUID
		label model.OptionLabel
	}{
		{"unknown question", uuid.New(), "A"},
		{"label not shown", qs[0].ID, "E"},
		{"garbage label", qs[0].ID, "Z"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.ctrl.SelectAnswer(context.Background(), tc.id, tc.label)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("SelectAnswer = %v, want validation error", err)
			}
		})
	}
}

func TestNavigateToClamps(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A", "B", "C", "D"))
	if _, err := h.ctrl.NavigateTo(1); !errors.Is(err, ErrNotActive) {
		t.Errorf("NavigateTo before start = %v, want ErrNotActive", err)
	}
	h.start(t)

	tests := []struct{ in, want int }{{-3, 0}, {0, 0}, {2, 2}, {3, 3}, {99, 3}}
	for _, tc := range tests {
		got, err := h.ctrl.NavigateTo(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("NavigateTo(%d) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if s := h.ctrl.State(); s.Current != tc.want || s.Question.Position != tc.want+1 {
			t.Errorf("state current=%d position=%d, want %d", s.Current, s.Question.Position, tc.want)
		}
	}
}

func TestToggleFlagAndPreview(t *testing.T) {
	qs := examQuestions("A", "B", "C", "D")
	h := newHarness(t, defaultExam(), qs)
	h.start(t)
	ctx := context.Background()
	order := h.ctrl.Layout()

	flagged, err := h.ctrl.ToggleFlag(ctx, order[1].QuestionID)
	if err != nil || !flagged {
		t.Fatalf("ToggleFlag = %v, %v; want true", flagged, err)
	}
	if _, err := h.ctrl.ToggleFlag(ctx, order[3].QuestionID); err != nil {
		t.Fatal(err)
	}
	if flagged, _ := h.ctrl.ToggleFlag(ctx, order[3].QuestionID); flagged {
		t.Error("second toggle should clear the flag")
	}
	if err := h.ctrl.SelectAnswer(ctx, order[0].QuestionID, "C"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.SelectAnswer(ctx, order[2].QuestionID, "A"); err != nil {
		t.Fatal(err)
	}

	p, err := h.ctrl.RequestFinish()
	if err != nil {
		t.Fatalf("RequestFinish: %v", err)
	}
	want := Preview{Total: 4, Answered: 2, Unanswered: []int{2, 4}, Flagged: []int{2}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("preview = %+v, want %+v", p, want)
	}
	if s := h.ctrl.State(); !s.ConfirmOpen || s.Answered != 2 || h.ctrl.Phase() != PhaseActive {
		t.Errorf("after RequestFinish: confirm=%v answered=%d phase=%s", s.ConfirmOpen, s.Answered, s.Phase)
	}
	if !h.autosave.flags[order[1].QuestionID] || h.autosave.flags[order[3].QuestionID] {
		t.Errorf("autosaved flags = %v", h.autosave.flags)
	}
}

func TestConfirmRequiresOpenGate(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.start(t)
	ctx := context.Background()

	if _, err := h.ctrl.ConfirmFinish(ctx); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("ConfirmFinish = %v, want ErrConfirmationRequired", err)
	}
	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatal(err)
	}
	h.ctrl.CancelFinish()
	if _, err := h.ctrl.ConfirmFinish(ctx); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("ConfirmFinish after cancel = %v, want ErrConfirmationRequired", err)
	}
	if h.data.submitCount() != 0 {
		t.Error("submitted without confirmation")
	}
}

// ─── Proctoring ─────────────────────────────────────────────────────────────

func TestFullscreenExitSuspendsAndBlocksAnswers(t *testing.T) {
	qs := examQuestions("A", "B")
	h := newHarness(t, defaultExam(), qs)
	h.start(t)
	ctx := context.Background()

	h.fullscreenExit()
	if got := h.ctrl.Phase(); got != PhaseSuspended {
		t.Fatalf("phase = %s, want SUSPENDED", got)
	}
	waitActivity(t, h.activity, model.ActivityFullscreenExit)

	if err := h.ctrl.SelectAnswer(ctx, qs[0].ID, "A"); err != nil {
		t.Fatalf("SelectAnswer while suspended = %v, want nil", err)
	}
	if s := h.ctrl.State(); s.Answered != 0 || s.ProctoringFlags != 1 {
		t.Fatalf("suspended state answered=%d flags=%d, want 0 and 1", s.Answered, s.ProctoringFlags)
	}
	if _, err := h.ctrl.RequestFinish(); !errors.Is(err, ErrNotActive) {
		t.Errorf("RequestFinish while suspended = %v, want ErrNotActive", err)
	}

	if err := h.ctrl.ReenterFullscreen(ctx); err != nil {
		t.Fatalf("ReenterFullscreen: %v", err)
	}
	if got := h.ctrl.Phase(); got != PhaseActive {
		t.Fatalf("phase = %s, want ACTIVE", got)
	}
	if err := h.ctrl.SelectAnswer(ctx, qs[0].ID, "A"); err != nil {
		t.Fatal(err)
	}
	if s := h.ctrl.State(); s.Answered != 1 {
		t.Errorf("answered = %d after resume, want 1", s.Answered)
	}
}

func TestReenterFullscreenDenied(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.start(t)

	if err := h.ctrl.ReenterFullscreen(context.Background()); !errors.Is(err, ErrNotSuspended) {
		t.Fatalf("ReenterFullscreen while active = %v, want ErrNotSuspended", err)
	}

	h.fullscreenExit()
	h.host.setRequestErr(errors.New("not allowed"))
	err := h.ctrl.ReenterFullscreen(context.Background())
	if !errors.Is(err, apperror.ErrProctoringSignal) {
		t.Fatalf("ReenterFullscreen = %v, want proctoring signal error", err)
	}
	if h.ctrl.Phase() != PhaseSuspended {
		t.Errorf("phase = %s, want SUSPENDED", h.ctrl.Phase())
	}
}

func TestOtherAnomaliesAreCountedNotSuspending(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.activity.err = errors.New("redis down")
	h.start(t)

	h.hub.Publish(proctor.Signal{Type: proctor.SignalVisibility, Hidden: true})
	waitActivity(t, h.activity, model.ActivityVisibilityHidden)
	h.hub.Publish(proctor.Signal{Type: proctor.SignalBeforeUnload})
	waitActivity(t, h.activity, model.ActivityBrowserUnload)
	h.hub.Publish(proctor.Signal{Type: proctor.SignalVisibility, Hidden: false})

	if got := h.ctrl.Phase(); got != PhaseActive {
		t.Errorf("phase = %s, want ACTIVE", got)
	}
	if s := h.ctrl.State(); s.ProctoringFlags != 2 {
		t.Errorf("flags = %d, want 2", s.ProctoringFlags)
	}
	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.anomalies) != 2 {
		t.Errorf("observer anomalies = %v", h.observer.anomalies)
	}
}

// The fullscreen exit caused by submission itself must not count.
func TestFinishingGuardSuppressesOwnFullscreenExit(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A", "B"))
	h.host.onExit = h.fullscreenExit
	h.start(t)

	if _, err := h.ctrl.ForceSubmit(context.Background()); err != nil {
		t.Fatalf("ForceSubmit: %v", err)
	}
	if got := h.ctrl.Phase(); got != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", got)
	}
	if s := h.ctrl.State(); s.ProctoringFlags != 0 || s.FinishReason != FinishForced {
		t.Errorf("flags=%d reason=%s, want 0 and forced", s.ProctoringFlags, s.FinishReason)
	}
	select {
	case kind := <-h.activity.logged:
		t.Errorf("programmatic exit logged as %s", kind)
	case <-time.After(50 * time.Millisecond):
	}
	for _, p := range h.observer.seen() {
		if p == PhaseSuspended {
			t.Error("controller passed through SUSPENDED during submission")
		}
	}
}

// ─── Timer ──────────────────────────────────────────────────────────────────

func TestTimerExpiryWhileSuspendedSubmits(t *testing.T) {
	exam := defaultExam()
	exam.DurationMinutes = 1
	qs := examQuestions("A", "B")
	h := newHarness(t, exam, qs)
	h.start(t)

	if err := h.ctrl.SelectAnswer(context.Background(), qs[0].ID, h.display(t, qs[0].ID, "A")); err != nil {
		t.Fatal(err)
	}
	h.fullscreenExit()
	if h.ctrl.Phase() != PhaseSuspended {
		t.Fatal("expected SUSPENDED")
	}

	h.clock.Advance(61 * time.Second)

	select {
	case res := <-h.observer.completed:
		if res.Correct != 1 || res.Unanswered != 1 {
			t.Errorf("result = %+v, want 1 correct 1 unanswered", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expiry did not submit")
	}
	if s := h.ctrl.State(); s.Phase != PhaseCompleted || s.FinishReason != FinishTimeout {
		t.Errorf("state phase=%s reason=%s, want COMPLETED timeout", s.Phase, s.FinishReason)
	}
	if h.data.submitCount() != 1 {
		t.Errorf("submits = %d, want 1", h.data.submitCount())
	}
}

func TestTimerTicksReachObserver(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	ticks := make(chan time.Duration, 1)
	h.ctrl.deps.Observer = tickObserver{recObserver: h.observer, ticks: ticks}
	h.start(t)

	h.clock.Advance(10 * time.Second)
	select {
	case r := <-ticks:
		if r != 30*time.Minute-10*time.Second {
			t.Errorf("tick remaining = %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}
}

type tickObserver struct {
	*recObserver
	ticks chan time.Duration
}

func (o tickObserver) Tick(r time.Duration) { o.ticks <- r }

// ─── Submission ─────────────────────────────────────────────────────────────

func TestSubmitFailurePreservesStateAndRetries(t *testing.T) {
	qs := examQuestions("A", "B", "C")
	h := newHarness(t, defaultExam(), qs)
	h.data.submitErrs = []error{apperror.Network("submit", errors.New("502"))}
	h.start(t)
	ctx := context.Background()

	if err := h.ctrl.SelectAnswer(ctx, qs[1].ID, h.display(t, qs[1].ID, "B")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.ConfirmFinish(ctx); !errors.Is(err, apperror.ErrNetwork) {
		t.Fatalf("ConfirmFinish = %v, want network error", err)
	}

	s := h.ctrl.State()
	if s.Phase != PhaseSubmitting || !s.Retryable || s.Answered != 1 {
		t.Fatalf("state after failure = %+v", s)
	}
	if err := h.ctrl.SelectAnswer(ctx, qs[0].ID, "A"); err != nil {
		t.Errorf("SelectAnswer while submitting = %v, want nil", err)
	}

	res, err := h.ctrl.RetrySubmit(ctx)
	if err != nil {
		t.Fatalf("RetrySubmit: %v", err)
	}
	if res.Correct != 1 || res.Unanswered != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(h.data.submits) != 2 || !reflect.DeepEqual(h.data.submits[0], h.data.submits[1]) {
		t.Errorf("retry sent different records: %v", h.data.submits)
	}

	again, err := h.ctrl.RetrySubmit(ctx)
	if err != nil || again.ID != res.ID {
		t.Errorf("RetrySubmit after completion = %v, %v; want stored result", again, err)
	}
	if h.data.submitCount() != 2 {
		t.Errorf("submits = %d, want 2", h.data.submitCount())
	}
}

func TestNoTimeLeftOnceSubmitting(t *testing.T) {
	qs := examQuestions("A")
	h := newHarness(t, defaultExam(), qs)
	h.data.submitErrs = []error{apperror.Network("submit", errors.New("502"))}
	h.start(t)
	ctx := context.Background()

	if got := h.ctrl.State().RemainingSeconds; got != 30*60 {
		t.Fatalf("remaining while active = %d, want 1800", got)
	}
	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.ConfirmFinish(ctx); err == nil {
		t.Fatal("ConfirmFinish succeeded, want network error")
	}
	if s := h.ctrl.State(); s.Phase != PhaseSubmitting || s.RemainingSeconds != 0 {
		t.Errorf("submitting: phase=%s remaining=%d, want SUBMITTING and 0", s.Phase, s.RemainingSeconds)
	}

	if _, err := h.ctrl.RetrySubmit(ctx); err != nil {
		t.Fatalf("RetrySubmit: %v", err)
	}
	if s := h.ctrl.State(); s.Phase != PhaseCompleted || s.RemainingSeconds != 0 {
		t.Errorf("completed: phase=%s remaining=%d, want COMPLETED and 0", s.Phase, s.RemainingSeconds)
	}
}

func TestAtMostOneSubmissionInFlight(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.data.block = make(chan struct{})
	h.start(t)
	ctx := context.Background()

	if _, err := h.ctrl.RequestFinish(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.ConfirmFinish(ctx)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.ctrl.Phase() != PhaseSubmitting && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := h.ctrl.ForceSubmit(ctx); !errors.Is(err, ErrNotActive) {
		t.Errorf("ForceSubmit during submission = %v, want ErrNotActive", err)
	}

	for !h.inFlight() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := h.ctrl.RetrySubmit(ctx); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("RetrySubmit = %v, want ErrSubmitInFlight", err)
	}

	close(h.data.block)
	if err := <-done; err != nil {
		t.Fatalf("ConfirmFinish: %v", err)
	}
	if h.data.submitCount() != 1 {
		t.Errorf("submits = %d, want 1", h.data.submitCount())
	}
}

// ─── Teardown and resume ────────────────────────────────────────────────────

func TestAbandonTearsDown(t *testing.T) {
	h := newHarness(t, defaultExam(), examQuestions("A"))
	h.start(t)

	h.ctrl.Abandon()
	h.ctrl.Abandon()

	if n := h.hub.Subscribers(proctor.SignalVisibility); n != 0 {
		t.Errorf("%d subscribers after Abandon", n)
	}
	if n := waitTickers(h.clock); n != 0 {
		t.Errorf("%d tickers after Abandon", n)
	}
	if _, err := h.ctrl.RequestFinish(); !errors.Is(err, ErrClosed) {
		t.Errorf("RequestFinish after Abandon = %v, want ErrClosed", err)
	}

	h.clock.Advance(31 * time.Minute)
	select {
	case <-h.observer.completed:
		t.Error("abandoned session submitted on expiry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResumeRestoresLayoutAnswersAndDeadline(t *testing.T) {
	exam := defaultExam()
	exam.ShuffleQuestions = true
	exam.ShuffleOptions = true
	qs := examQuestions("A", "B", "C")

	first := newHarness(t, exam, qs)
	first.start(t)
	layout := first.ctrl.Layout()
	first.ctrl.Abandon()

	progress := &model.Progress{
		Deadline: t0.Add(12 * time.Minute),
		Layout:   layout,
		Answers:  map[uuid.UUID]model.OptionLabel{qs[2].ID: "C"},
		Flags:    map[uuid.UUID]bool{qs[0].ID: true},
	}
	h := newHarness(t, exam, qs, WithResume(progress))
	h.start(t)

	if got := h.ctrl.Layout(); !reflect.DeepEqual(got, layout) {
		t.Errorf("resumed layout = %v, want %v", got, layout)
	}
	if !h.ctrl.countdown.Deadline().Equal(progress.Deadline) {
		t.Errorf("deadline = %v, want %v", h.ctrl.countdown.Deadline(), progress.Deadline)
	}
	s := h.ctrl.State()
	if s.Answered != 1 || s.RemainingSeconds != 12*60 {
		t.Errorf("answered=%d remaining=%d, want 1 and 720", s.Answered, s.RemainingSeconds)
	}
	flagged := 0
	for _, q := range s.Questions {
		if q.Flagged {
			flagged++
		}
	}
	if flagged != 1 {
		t.Errorf("flagged = %d, want 1", flagged)
	}
}

func TestResumePastDeadlineSubmitsImmediately(t *testing.T) {
	qs := examQuestions("A")
	h := newHarness(t, defaultExam(), qs, WithResume(&model.Progress{
		Deadline: t0.Add(-time.Minute),
		Answers:  map[uuid.UUID]model.OptionLabel{qs[0].ID: "A"},
	}))
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case res := <-h.observer.completed:
		if res.Score != 100 {
			t.Errorf("score = %v, want 100", res.Score)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expired resume did not submit")
	}
}

func TestResumeWithCorruptOptionOrder(t *testing.T) {
	qs := examQuestions("A", "B")
	progress := &model.Progress{
		Deadline: t0.Add(10 * time.Minute),
		Layout: []model.QuestionLayout{
			{QuestionID: qs[1].ID, OptionOrder: []model.OptionLabel{"A", "A", "B", "C", "D", "E"}},
			{QuestionID: qs[0].ID, OptionOrder: []model.OptionLabel{"E", "D", "C", "B", "A"}},
		},
	}
	h := newHarness(t, defaultExam(), qs, WithResume(progress))
	h.start(t)

	layout := h.ctrl.Layout()
	if len(layout) != 2 || layout[0].QuestionID != qs[1].ID || layout[1].QuestionID != qs[0].ID {
		t.Fatalf("question order not restored: %v", layout)
	}
	if got := layout[0].OptionOrder; len(got) != 5 {
		t.Errorf("corrupt option order = %v, want a full five-option layout", got)
	}
	if got, want := layout[1].OptionOrder, progress.Layout[1].OptionOrder; !reflect.DeepEqual(got, want) {
		t.Errorf("intact option order = %v, want %v", got, want)
	}
}
