package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/scoring"
)

// ExamDataService serves question sets and stores scored submissions.
// It is the exam store behind every session controller.
type ExamDataService struct {
	questionRepo *repository.QuestionRepository
	resultRepo   *repository.ResultRepository
	cache        *repository.QuestionCache
	progress     *repository.ProgressStore
	rdb          *redis.Client
	cfg          *config.Config
	log          zerolog.Logger
	now          func() time.Time
}

// NewExamDataService creates a new ExamDataService.
func NewExamDataService(
	questionRepo *repository.QuestionRepository,
	resultRepo *repository.ResultRepository,
	cache *repository.QuestionCache,
	progress *repository.ProgressStore,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamDataService {
	return &ExamDataService{
		questionRepo: questionRepo,
		resultRepo:   resultRepo,
		cache:        cache,
		progress:     progress,
		rdb:          rdb,
		cfg:          cfg,
		log:          log.With().Str("component", "exam_data_service").Logger(),
		now:          time.Now,
	}
}

// FetchQuestions returns the exam's canonical question set, served from the
// Redis cache when warm.
func (s *ExamDataService) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	qs, err := s.cache.Get(ctx, examID)
	if err == nil {
		return qs, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Question cache read failed, falling back to database")
	}

	qs, err = s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, apperror.FromStore("fetch questions", err)
	}
	if len(qs) > 0 {
		if err := s.cache.Set(ctx, examID, qs, s.cfg.QuestionCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache questions")
		}
	}
	return qs, nil
}

// SubmitResult scores answers and stores the result. A user has at most one
// result per exam: resubmitting returns the stored result unchanged.
func (s *ExamDataService) SubmitResult(ctx context.Context, userID int, examID uuid.UUID, answers []model.AnswerRecord) (*model.Result, error) {
	questions, err := s.FetchQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := scoring.Validate(questions, answers); err != nil {
		return nil, err
	}

	existing, err := s.resultRepo.GetByExamAndUser(ctx, examID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.FromStore("submit result", err)
	}

	acquired, err := s.progress.AcquireSubmitLock(ctx, examID, userID, s.cfg.SubmitLockTTL)
	if err != nil {
		return nil, apperror.Network("submit result", err)
	}
	if !acquired {
		return nil, apperror.Network("submit result", ErrSubmissionPending)
	}
	defer func() {
		if err := s.progress.ReleaseSubmitLock(context.WithoutCancel(ctx), examID, userID); err != nil {
			s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to release submit lock")
		}
	}()

	res := scoring.Score(questions, answers)
	res.UserID = userID
	res.ExamID = examID
	res.SubmittedAt = s.now()

	stored, inserted, err := s.resultRepo.Insert(ctx, &res)
	if err != nil {
		return nil, apperror.FromStore("submit result", err)
	}

	if inserted {
		s.enqueueCompletion(ctx, userID, examID, stored.SubmittedAt)
		s.log.Info().
			Int("user_id", userID).
			Str("exam_id", examID.String()).
			Float64("score", stored.Score).
			Int("correct", stored.Correct).
			Int("total", stored.Total()).
			Msg("Exam submitted and graded")
	}
	return stored, nil
}

// enqueueCompletion hands the attempt over to the CompletionWorker. The
// result is already durable, so a queue failure only delays cleanup.
func (s *ExamDataService) enqueueCompletion(ctx context.Context, userID int, examID uuid.UUID, at time.Time) {
	payload, _ := json.Marshal(model.CompletionJob{UserID: userID, ExamID: examID, FinishedAt: at})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistCompletionQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Int("user_id", userID).Msg("Failed to enqueue attempt completion")
	}
}

// FetchResults returns every stored result of the exam in submission order.
func (s *ExamDataService) FetchResults(ctx context.Context, examID uuid.UUID) ([]model.Result, error) {
	results, err := s.resultRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, apperror.FromStore("fetch results", err)
	}
	return results, nil
}

// FetchResult returns one user's stored result.
func (s *ExamDataService) FetchResult(ctx context.Context, userID int, examID uuid.UUID) (*model.Result, error) {
	res, err := s.resultRepo.GetByExamAndUser(ctx, examID, userID)
	if err != nil {
		return nil, apperror.FromStore("fetch result", err)
	}
	return res, nil
}
