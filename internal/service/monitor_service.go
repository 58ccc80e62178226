package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/sync/errgroup"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// ParticipantProgress is one in-progress user's live counters.
type ParticipantProgress struct {
	UserID    int   `json:"user_id"`
	Answered  int64 `json:"answered"`
	Anomalies int64 `json:"anomalies"`
}

// ProgressSnapshot holds live progress for every in-progress participant.
type ProgressSnapshot struct {
	Participants   []ParticipantProgress `json:"participants"`
	TotalAnomalies int64                 `json:"total_anomalies"`
}

// GetProgress returns answered and anomaly counts for every in-progress
// participant. The two sources are read concurrently; anomaly counts are
// best-effort.
func (s *MonitorService) GetProgress(ctx context.Context, examID uuid.UUID) (*ProgressSnapshot, error) {
	var (
		answered  map[int]int64
		anomalies map[int]int64
		userIDs   []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.monitorRepo.GetInProgressUserIDs(gctx, examID)
		if err != nil {
			return apperror.FromStore("list participants", err)
		}
		counts, err := s.monitorRepo.GetLiveAnsweredCounts(gctx, examID, ids)
		if err != nil {
			return apperror.FromStore("count answers", err)
		}
		userIDs, answered = ids, counts
		return nil
	})
	g.Go(func() error {
		counts, err := s.monitorRepo.GetActivityCounts(gctx, examID)
		if err == nil {
			anomalies = counts
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &ProgressSnapshot{Participants: make([]ParticipantProgress, 0, len(userIDs))}
	for _, uid := range userIDs {
		snap.Participants = append(snap.Participants, ParticipantProgress{
			UserID:    uid,
			Answered:  answered[uid],
			Anomalies: anomalies[uid],
		})
	}
	for _, n := range anomalies {
		snap.TotalAnomalies += n
	}
	return snap, nil
}
