package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// AutosaveService writes attempt progress to Redis and queues it for the
// persistence workers, so an attempt survives reconnects and Redis eviction.
type AutosaveService struct {
	progress *repository.ProgressStore
	rdb      *redis.Client
}

// NewAutosaveService creates a new AutosaveService.
func NewAutosaveService(progress *repository.ProgressStore, rdb *redis.Client) *AutosaveService {
	return &AutosaveService{progress: progress, rdb: rdb}
}

// SaveLayout stores the attempt's deadline and question/option layout.
func (s *AutosaveService) SaveLayout(ctx context.Context, userID int, examID uuid.UUID, deadline time.Time, layout []model.QuestionLayout) error {
	if err := s.progress.SaveLayout(ctx, examID, userID, deadline, layout); err != nil {
		return apperror.Network("save layout", err)
	}
	return s.enqueue(ctx, config.WorkerKey.PersistLayoutQueue, model.LayoutJob{
		UserID:   userID,
		ExamID:   examID,
		Deadline: deadline,
		Layout:   layout,
		SavedAt:  time.Now(),
	})
}

// SaveAnswer stores the original label selected for a question.
func (s *AutosaveService) SaveAnswer(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, selected model.OptionLabel) error {
	if err := s.progress.SaveAnswer(ctx, examID, userID, questionID, selected); err != nil {
		return apperror.Network("save answer", err)
	}
	return s.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, model.AnswerJob{
		UserID:     userID,
		ExamID:     examID,
		QuestionID: questionID,
		Selected:   &selected,
		SavedAt:    time.Now(),
	})
}

// SaveFlag stores a question's review flag.
func (s *AutosaveService) SaveFlag(ctx context.Context, userID int, examID uuid.UUID, questionID uuid.UUID, flagged bool) error {
	if err := s.progress.SaveFlag(ctx, examID, userID, questionID, flagged); err != nil {
		return apperror.Network("save flag", err)
	}
	return s.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, model.AnswerJob{
		UserID:     userID,
		ExamID:     examID,
		QuestionID: questionID,
		Flagged:    &flagged,
		SavedAt:    time.Now(),
	})
}

func (s *AutosaveService) enqueue(ctx context.Context, queue string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		return apperror.Network("enqueue "+queue, err)
	}
	return nil
}
