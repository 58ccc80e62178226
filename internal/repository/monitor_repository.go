package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
)

// MonitorRepository provides data access for the live exam monitor.
// It combines PostgreSQL (attempts, activity) and Redis (live answer counts).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetInProgressUserIDs returns all users with an unfinished attempt for the exam.
func (r *MonitorRepository) GetInProgressUserIDs(ctx context.Context, examID uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM exam_attempts WHERE exam_id = $1 AND status = 'IN_PROGRESS' ORDER BY user_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLiveAnsweredCounts reads answered-question counts straight from the
// Redis answer hashes, one pipelined HLEN per user.
func (r *MonitorRepository) GetLiveAnsweredCounts(ctx context.Context, examID uuid.UUID, userIDs []int) (map[int]int64, error) {
	counts := make(map[int]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, uid := range userIDs {
		cmds[i] = pipe.HLen(ctx, config.CacheKey.AttemptAnswersKey(examID.String(), uid))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	for i, uid := range userIDs {
		counts[uid] = cmds[i].Val()
	}
	return counts, nil
}

// GetActivityCounts returns the number of logged anomalies per user for the exam.
func (r *MonitorRepository) GetActivityCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, COUNT(*)
		 FROM activity_logs
		 WHERE exam_id = $1
		 GROUP BY user_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var uid int
		var count int64
		if err := rows.Scan(&uid, &count); err != nil {
			return nil, err
		}
		counts[uid] = count
	}

	return counts, rows.Err()
}
