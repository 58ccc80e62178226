package service

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ClearReason says why a client drops its snapshot.
type ClearReason string

const (
	ClearReasonLogout ClearReason = "logout"
	ClearReasonLogin  ClearReason = "login"
)

// SnapshotService stores the client session snapshot restored across page
// reloads.
type SnapshotService struct {
	store    *repository.SnapshotStore
	activity *ActivityService
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(store *repository.SnapshotStore, activity *ActivityService, cfg *config.Config, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		store:    store,
		activity: activity,
		cfg:      cfg,
		log:      log.With().Str("component", "snapshot_service").Logger(),
	}
}

// Get returns the user's snapshot, or a NotFound error when none is stored.
func (s *SnapshotService) Get(ctx context.Context, userID int) (*model.SessionSnapshot, error) {
	snap, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, apperror.FromStore("get snapshot", err)
	}
	return snap, nil
}

// Save stores the snapshot. Returning to the login view clears it instead.
func (s *SnapshotService) Save(ctx context.Context, userID int, snap *model.SessionSnapshot) error {
	if snap.User == nil || snap.User.ID != userID {
		return apperror.Validation("save snapshot", "snapshot user does not match the caller")
	}
	if snap.CurrentView == model.ViewLogin {
		return s.Clear(ctx, userID, ClearReasonLogin)
	}
	if err := s.store.Save(ctx, userID, snap, s.cfg.SnapshotTTL); err != nil {
		return apperror.Network("save snapshot", err)
	}
	return nil
}

// Clear deletes the snapshot. Logging out in the middle of an exam is
// recorded as a LOGOUT activity.
func (s *SnapshotService) Clear(ctx context.Context, userID int, reason ClearReason) error {
	if reason == ClearReasonLogout {
		snap, err := s.store.Get(ctx, userID)
		switch {
		case err == nil && snap.CurrentView == model.ViewExam && snap.ActiveExam != nil:
			if err := s.activity.LogActivity(ctx, userID, snap.ActiveExam.ID, model.ActivityLogout); err != nil {
				s.log.Debug().Err(err).Int("user_id", userID).Msg("Logout activity dropped")
			}
		case err != nil && !errors.Is(err, redis.Nil):
			s.log.Debug().Err(err).Int("user_id", userID).Msg("Failed to read snapshot before logout")
		}
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return apperror.Network("clear snapshot", err)
	}
	return nil
}
