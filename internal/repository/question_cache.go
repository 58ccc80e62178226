package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionCache holds an exam's canonical question set in Redis so that a
// classroom joining at once hits PostgreSQL only once.
type QuestionCache struct {
	rdb *redis.Client
}

// NewQuestionCache creates a new QuestionCache.
func NewQuestionCache(rdb *redis.Client) *QuestionCache {
	return &QuestionCache{rdb: rdb}
}

// Get returns the cached questions, or redis.Nil on a miss.
func (c *QuestionCache) Get(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.ExamQuestionsKey(examID.String())).Bytes()
	if err != nil {
		return nil, err
	}
	var qs []model.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Set caches the question set for ttl.
func (c *QuestionCache) Set(ctx context.Context, examID uuid.UUID, qs []model.Question, ttl time.Duration) error {
	raw, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamQuestionsKey(examID.String()), raw, ttl).Err()
}

// Invalidate drops the cached set.
func (c *QuestionCache) Invalidate(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamQuestionsKey(examID.String())).Err()
}
