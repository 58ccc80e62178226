package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// DefaultActivityLimit caps activity listings when the caller gives no limit.
const DefaultActivityLimit = 200

// ActivityService records proctoring anomalies and session events.
// Writes are queued for the ActivityWorker and fanned out to live monitors.
type ActivityService struct {
	activityRepo *repository.ActivityRepository
	rdb          *redis.Client
	log          zerolog.Logger
	now          func() time.Time
}

// NewActivityService creates a new ActivityService.
func NewActivityService(activityRepo *repository.ActivityRepository, rdb *redis.Client, log zerolog.Logger) *ActivityService {
	return &ActivityService{
		activityRepo: activityRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "activity_service").Logger(),
		now:          time.Now,
	}
}

// LogActivity queues an activity entry and publishes it to the exam's
// monitor channel.
func (s *ActivityService) LogActivity(ctx context.Context, userID int, examID uuid.UUID, kind model.ActivityType) error {
	at := s.now()
	job, _ := json.Marshal(model.ActivityJob{
		UserID:    userID,
		ExamID:    examID,
		Type:      kind,
		Timestamp: at.UnixMilli(),
	})
	event, _ := json.Marshal(model.ActivityEvent{
		UserID:    userID,
		ExamID:    examID,
		Type:      kind,
		Timestamp: at,
	})

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistActivityQueue, job)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperror.Network("log activity", err)
	}
	return nil
}

// ListByExam returns the exam's persisted activity log, newest first.
func (s *ActivityService) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ActivityEvent, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	events, err := s.activityRepo.ListByExam(ctx, examID, limit)
	if err != nil {
		return nil, apperror.FromStore("list activity", err)
	}
	return events, nil
}

// Subscribe follows the exam's live activity stream. The caller must Close
// the returned subscription.
func (s *ActivityService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
