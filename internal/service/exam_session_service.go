package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/proctor"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/session"
	"github.com/stemsi/exstem-cbt/internal/shuffle"
	"github.com/stemsi/exstem-cbt/internal/timer"
)

// Binding carries the per-connection collaborators of a live attempt.
type Binding struct {
	Host     session.Host
	Signals  proctor.Source
	Lockdown proctor.Lockdown
	Observer session.Observer
}

// AttemptState is what a student sees of an attempt outside the live stream.
type AttemptState struct {
	Exam             model.ExamConfig    `json:"exam"`
	Status           model.AttemptStatus `json:"status"`
	Live             *session.State      `json:"live,omitempty"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Answered         int                 `json:"answered"`
	Result           *model.Result       `json:"result,omitempty"`
}

// LobbyStatus is how an exam appears in a student's lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming  LobbyStatus = "UPCOMING"
	LobbyStatusAvailable LobbyStatus = "AVAILABLE"
	LobbyStatusCompleted LobbyStatus = "COMPLETED"
)

// LobbyExam is an active exam as listed for a student.
type LobbyExam struct {
	model.ExamConfig
	LobbyStatus LobbyStatus `json:"lobby_status"`
	FinalScore  *float64    `json:"final_score,omitempty"`
}

type attemptKey struct {
	examID uuid.UUID
	userID int
}

// ExamSessionService handles token joins and owns the live session
// controllers, one per (exam, user).
type ExamSessionService struct {
	examRepo    *repository.ExamRepository
	attemptRepo *repository.AttemptRepository
	resultRepo  *repository.ResultRepository
	progress    *repository.ProgressStore
	data        *ExamDataService
	activity    *ActivityService
	autosave    *AutosaveService
	shuffler    *shuffle.Shuffler
	clock       timer.Clock
	log         zerolog.Logger
	rootLog     zerolog.Logger

	mu   sync.Mutex
	live map[attemptKey]*session.Controller
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	examRepo *repository.ExamRepository,
	attemptRepo *repository.AttemptRepository,
	resultRepo *repository.ResultRepository,
	progress *repository.ProgressStore,
	data *ExamDataService,
	activity *ActivityService,
	autosave *AutosaveService,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
		resultRepo:  resultRepo,
		progress:    progress,
		data:        data,
		activity:    activity,
		autosave:    autosave,
		shuffler:    shuffle.New(),
		clock:       timer.System(),
		log:         log.With().Str("component", "exam_session_service").Logger(),
		rootLog:     log,
		live:        make(map[attemptKey]*session.Controller),
	}
}

// Join validates an entry token and records the user's attempt. Tokens are
// compared case-insensitively. Joining again returns the existing attempt.
func (s *ExamSessionService) Join(ctx context.Context, userID int, token string) (*model.ExamConfig, *model.Attempt, error) {
	token = strings.TrimSpace(token)
	exam, err := s.examRepo.GetByToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, apperror.FromStore("join exam", err)
	}
	if !exam.TokenMatches(token) {
		return nil, nil, ErrInvalidToken
	}
	if !exam.Active {
		return nil, nil, ErrExamInactive
	}
	if !exam.Started(s.clock.Now()) {
		return nil, nil, ErrExamNotStarted
	}

	done, err := s.hasResult(ctx, exam.ID, userID)
	if err != nil {
		return nil, nil, err
	}
	if done {
		return nil, nil, ErrAlreadyCompleted
	}

	attempt := &model.Attempt{ExamID: exam.ID, UserID: userID, JoinedAt: time.Now()}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().Int("user_id", userID).Str("exam_id", exam.ID.String()).Msg("Student joined exam")
	public := exam.Public()
	return &public, attempt, nil
}

// Lobby lists the active exams with the user's standing in each. Entry
// tokens are never included; students still join with the token they are
// given.
func (s *ExamSessionService) Lobby(ctx context.Context, userID int) ([]LobbyExam, error) {
	exams, err := s.examRepo.ListActive(ctx)
	if err != nil {
		return nil, apperror.FromStore("list active exams", err)
	}
	scores, err := s.resultRepo.ScoresByUser(ctx, userID)
	if err != nil {
		return nil, apperror.FromStore("list results", err)
	}
	return buildLobby(exams, scores, s.clock.Now()), nil
}

func buildLobby(exams []model.ExamConfig, scores map[uuid.UUID]float64, now time.Time) []LobbyExam {
	lobby := make([]LobbyExam, 0, len(exams))
	for _, e := range exams {
		entry := LobbyExam{ExamConfig: e.Public(), LobbyStatus: LobbyStatusAvailable}
		if score, ok := scores[e.ID]; ok {
			entry.LobbyStatus = LobbyStatusCompleted
			entry.FinalScore = &score
		} else if !e.Started(now) {
			entry.LobbyStatus = LobbyStatusUpcoming
		}
		lobby = append(lobby, entry)
	}
	return lobby
}

func (s *ExamSessionService) hasResult(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	_, err := s.resultRepo.GetByExamAndUser(ctx, examID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, apperror.FromStore("check result", err)
	}
}

// loadAttempt returns the exam and attempt, refusing attempts that were
// never joined or are already scored.
func (s *ExamSessionService) loadAttempt(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamConfig, *model.Attempt, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, nil, apperror.FromStore("get exam", err)
	}
	attempt, err := s.attemptRepo.GetByExamAndUser(ctx, examID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNoAttempt
	}
	if err != nil {
		return nil, nil, apperror.FromStore("get attempt", err)
	}
	return exam, attempt, nil
}

// LoadProgress returns the resumable progress of an attempt, or nil when
// it has not started yet. Redis is read first; on a miss the PostgreSQL copy
// is used and written back.
func (s *ExamSessionService) LoadProgress(ctx context.Context, examID uuid.UUID, userID int) (*model.Progress, error) {
	p, err := s.progress.Load(ctx, examID, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, apperror.Network("load progress", err)
	}

	p, err = s.attemptRepo.GetProgress(ctx, examID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.FromStore("load progress", err)
	}

	if err := s.progress.Restore(ctx, examID, userID, p); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to restore progress cache")
	}
	return p, nil
}

// Open creates the live controller for an attempt, replacing any controller
// left by an earlier connection. A previously started attempt resumes with
// its original deadline, layout and answers.
func (s *ExamSessionService) Open(ctx context.Context, userID int, examID uuid.UUID, b Binding) (*session.Controller, error) {
	exam, attempt, err := s.loadAttempt(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	done, err := s.hasResult(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrAlreadyCompleted
	}

	progress, err := s.LoadProgress(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	deps := session.Deps{
		Data:     s.data,
		Activity: s.activity,
		Autosave: s.autosave,
		Host:     b.Host,
		Signals:  b.Signals,
		Lockdown: b.Lockdown,
		Observer: b.Observer,
		Shuffler: s.shuffler,
		Clock:    s.clock,
		Log:      logger.Session(s.rootLog, userID, examID.String()),
	}
	var opts []session.Option
	if progress != nil {
		opts = append(opts, session.WithResume(progress))
	}
	ctrl := session.NewController(userID, *exam, deps, opts...)

	key := attemptKey{examID: examID, userID: userID}
	s.mu.Lock()
	prev := s.live[key]
	s.live[key] = ctrl
	s.mu.Unlock()

	if prev != nil {
		prev.Abandon()
	}
	return ctrl, nil
}

// Close deregisters ctrl, if it is still registered, and abandons it.
func (s *ExamSessionService) Close(ctrl *session.Controller) {
	key := attemptKey{examID: ctrl.Exam().ID, userID: ctrl.UserID()}
	s.mu.Lock()
	if s.live[key] == ctrl {
		delete(s.live, key)
	}
	s.mu.Unlock()
	ctrl.Abandon()
}

// Live returns the registered controller for an attempt, if any.
func (s *ExamSessionService) Live(examID uuid.UUID, userID int) (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.live[attemptKey{examID: examID, userID: userID}]
	return ctrl, ok
}

// PrewarmQuestions loads every active exam's questions into the cache so the
// first wave of students does not hit PostgreSQL at once.
func (s *ExamSessionService) PrewarmQuestions(ctx context.Context) error {
	exams, err := s.examRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}
	for _, e := range exams {
		qs, err := s.data.FetchQuestions(ctx, e.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", e.ID.String()).Msg("Prewarm failed for exam")
			continue
		}
		s.log.Debug().Str("exam_id", e.ID.String()).Int("questions", len(qs)).Msg("Questions prewarmed")
	}
	s.log.Info().Int("exams", len(exams)).Msg("Question cache prewarmed")
	return nil
}

// LiveCount returns how many attempts currently have a connected stream.
func (s *ExamSessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Evict abandons the live controller of an attempt, if any.
func (s *ExamSessionService) Evict(examID uuid.UUID, userID int) {
	if ctrl, ok := s.Live(examID, userID); ok {
		s.Close(ctrl)
	}
}

// Shutdown abandons every live controller.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.live))
	for k, c := range s.live {
		ctrls = append(ctrls, c)
		delete(s.live, k)
	}
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Abandon()
	}
}

// GetState describes an attempt: the live controller's state when one is
// connected, otherwise the stored progress or result.
func (s *ExamSessionService) GetState(ctx context.Context, examID uuid.UUID, userID int) (*AttemptState, error) {
	exam, attempt, err := s.loadAttempt(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	st := &AttemptState{
		Exam:             exam.Public(),
		Status:           attempt.Status,
		RemainingSeconds: exam.DurationMinutes * 60,
	}

	if ctrl, ok := s.Live(examID, userID); ok && !ctrl.Closed() {
		live := ctrl.State()
		st.Live = &live
		st.RemainingSeconds = live.RemainingSeconds
		st.Answered = live.Answered
		st.Result = live.Result
		return st, nil
	}

	res, err := s.resultRepo.GetByExamAndUser(ctx, examID, userID)
	switch {
	case err == nil:
		st.Status = model.AttemptStatusCompleted
		st.Result = res
		st.RemainingSeconds = 0
		st.Answered = res.Correct + res.Incorrect
		return st, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, apperror.FromStore("get result", err)
	}

	p, err := s.LoadProgress(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		deadline := p.Deadline
		st.Deadline = &deadline
		st.RemainingSeconds = max(0, int(deadline.Sub(s.clock.Now()).Seconds()))
		st.Answered = len(p.Answers)
	}
	return st, nil
}
