package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// progressGrace keeps attempt keys around after the deadline so a late
// submission can still read them.
const progressGrace = time.Hour

// ProgressStore keeps the hot copy of an in-flight attempt in Redis:
// deadline, layout, answers hash and flag set.
type ProgressStore struct {
	rdb *redis.Client
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(rdb *redis.Client) *ProgressStore {
	return &ProgressStore{rdb: rdb}
}

func (s *ProgressStore) keys(examID uuid.UUID, userID int) []string {
	eid := examID.String()
	return []string{
		config.CacheKey.AttemptDeadlineKey(eid, userID),
		config.CacheKey.AttemptLayoutKey(eid, userID),
		config.CacheKey.AttemptAnswersKey(eid, userID),
		config.CacheKey.AttemptFlagsKey(eid, userID),
	}
}

// SaveLayout stores the deadline and layout and pins every attempt key to
// expire shortly after the deadline.
func (s *ProgressStore) SaveLayout(ctx context.Context, examID uuid.UUID, userID int, deadline time.Time, layout []model.QuestionLayout) error {
	raw, err := json.Marshal(layout)
	if err != nil {
		return err
	}
	expireAt := deadline.Add(progressGrace)
	eid := examID.String()

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AttemptDeadlineKey(eid, userID), deadline.UnixMilli(), 0)
	pipe.Set(ctx, config.CacheKey.AttemptLayoutKey(eid, userID), raw, 0)
	for _, k := range s.keys(examID, userID) {
		pipe.ExpireAt(ctx, k, expireAt)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// SaveAnswer records the original label selected for a question.
func (s *ProgressStore) SaveAnswer(ctx context.Context, examID uuid.UUID, userID int, questionID uuid.UUID, selected model.OptionLabel) error {
	key := config.CacheKey.AttemptAnswersKey(examID.String(), userID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, questionID.String(), string(selected))
	pipe.Expire(ctx, key, s.ttl(ctx, examID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

// SaveFlag adds or removes a question from the flagged set.
func (s *ProgressStore) SaveFlag(ctx context.Context, examID uuid.UUID, userID int, questionID uuid.UUID, flagged bool) error {
	key := config.CacheKey.AttemptFlagsKey(examID.String(), userID)
	pipe := s.rdb.TxPipeline()
	if flagged {
		pipe.SAdd(ctx, key, questionID.String())
	} else {
		pipe.SRem(ctx, key, questionID.String())
	}
	pipe.Expire(ctx, key, s.ttl(ctx, examID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

// ttl derives the remaining key lifetime from the stored deadline, falling
// back to the grace period when the deadline is not yet known.
func (s *ProgressStore) ttl(ctx context.Context, examID uuid.UUID, userID int) time.Duration {
	ms, err := s.rdb.Get(ctx, config.CacheKey.AttemptDeadlineKey(examID.String(), userID)).Int64()
	if err != nil {
		return progressGrace
	}
	d := time.Until(time.UnixMilli(ms).Add(progressGrace))
	if d <= 0 {
		return progressGrace
	}
	return d
}

// Load reads the attempt's progress. It returns redis.Nil when no deadline
// has been stored yet.
func (s *ProgressStore) Load(ctx context.Context, examID uuid.UUID, userID int) (*model.Progress, error) {
	eid := examID.String()
	pipe := s.rdb.Pipeline()
	deadlineCmd := pipe.Get(ctx, config.CacheKey.AttemptDeadlineKey(eid, userID))
	layoutCmd := pipe.Get(ctx, config.CacheKey.AttemptLayoutKey(eid, userID))
	answersCmd := pipe.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(eid, userID))
	flagsCmd := pipe.SMembers(ctx, config.CacheKey.AttemptFlagsKey(eid, userID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	if err := deadlineCmd.Err(); err != nil {
		return nil, err
	}
	ms, err := strconv.ParseInt(deadlineCmd.Val(), 10, 64)
	if err != nil {
		return nil, err
	}

	p := &model.Progress{
		Deadline: time.UnixMilli(ms),
		Answers:  make(map[uuid.UUID]model.OptionLabel),
		Flags:    make(map[uuid.UUID]bool),
	}
	if raw, err := layoutCmd.Bytes(); err == nil {
		if err := json.Unmarshal(raw, &p.Layout); err != nil {
			return nil, err
		}
	} else if err != redis.Nil {
		return nil, err
	}

	for qid, label := range answersCmd.Val() {
		id, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		p.Answers[id] = model.OptionLabel(label)
	}
	for _, qid := range flagsCmd.Val() {
		if id, err := uuid.Parse(qid); err == nil {
			p.Flags[id] = true
		}
	}
	return p, nil
}

// Restore writes a progress loaded from PostgreSQL back into Redis.
func (s *ProgressStore) Restore(ctx context.Context, examID uuid.UUID, userID int, p *model.Progress) error {
	if err := s.SaveLayout(ctx, examID, userID, p.Deadline, p.Layout); err != nil {
		return err
	}
	eid := examID.String()
	expireAt := p.Deadline.Add(progressGrace)
	pipe := s.rdb.TxPipeline()
	if len(p.Answers) > 0 {
		fields := make(map[string]interface{}, len(p.Answers))
		for qid, label := range p.Answers {
			fields[qid.String()] = string(label)
		}
		key := config.CacheKey.AttemptAnswersKey(eid, userID)
		pipe.HSet(ctx, key, fields)
		pipe.ExpireAt(ctx, key, expireAt)
	}
	if len(p.Flags) > 0 {
		members := make([]interface{}, 0, len(p.Flags))
		for qid, on := range p.Flags {
			if on {
				members = append(members, qid.String())
			}
		}
		if len(members) > 0 {
			key := config.CacheKey.AttemptFlagsKey(eid, userID)
			pipe.SAdd(ctx, key, members...)
			pipe.ExpireAt(ctx, key, expireAt)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AcquireSubmitLock claims the single submission slot for an attempt.
func (s *ProgressStore) AcquireSubmitLock(ctx context.Context, examID uuid.UUID, userID int, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, config.CacheKey.SubmitLockKey(examID.String(), userID), time.Now().Unix(), ttl).Result()
}

// ReleaseSubmitLock frees the submission slot.
func (s *ProgressStore) ReleaseSubmitLock(ctx context.Context, examID uuid.UUID, userID int) error {
	return s.rdb.Del(ctx, config.CacheKey.SubmitLockKey(examID.String(), userID)).Err()
}

// Clear drops every hot key of the attempt, including the submit lock.
func (s *ProgressStore) Clear(ctx context.Context, examID uuid.UUID, userID int) error {
	keys := append(s.keys(examID, userID), config.CacheKey.SubmitLockKey(examID.String(), userID))
	return s.rdb.Del(ctx, keys...).Err()
}
