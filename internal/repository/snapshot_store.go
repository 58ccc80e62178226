package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// SnapshotStore persists client session snapshots in Redis as JSON.
type SnapshotStore struct {
	rdb *redis.Client
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{rdb: rdb}
}

// Get returns the user's snapshot, or redis.Nil when none is stored.
func (s *SnapshotStore) Get(ctx context.Context, userID int) (*model.SessionSnapshot, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionSnapshotKey(userID)).Bytes()
	if err != nil {
		return nil, err
	}
	var snap model.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save overwrites the user's snapshot.
func (s *SnapshotStore) Save(ctx context.Context, userID int, snap *model.SessionSnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, config.CacheKey.SessionSnapshotKey(userID), raw, ttl).Err()
}

// Delete removes the user's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, userID int) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionSnapshotKey(userID)).Err()
}
