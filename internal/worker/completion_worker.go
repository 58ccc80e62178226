package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// CompletionWorker marks attempts completed once their result is stored and
// drops the attempt's hot progress keys from Redis.
type CompletionWorker struct {
	pool     *pgxpool.Pool
	progress *repository.ProgressStore
	log      zerolog.Logger
	consumer *queueConsumer[model.CompletionJob]
}

func NewCompletionWorker(pool *pgxpool.Pool, rdb *redis.Client, progress *repository.ProgressStore, log zerolog.Logger) *CompletionWorker {
	w := &CompletionWorker{
		pool:     pool,
		progress: progress,
		log:      log.With().Str("component", "completion_worker").Logger(),
	}
	w.consumer = &queueConsumer[model.CompletionJob]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistCompletionQueue,
		store: store[model.CompletionJob]{bulk: w.bulkComplete, single: w.complete, after: w.clearProgress},
		log:   w.log,
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *CompletionWorker) Start(ctx context.Context) {
	w.consumer.run(ctx)
}

func (w *CompletionWorker) bulkComplete(ctx context.Context, batch []model.CompletionJob) error {
	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	users := make([]int, 0, n)
	finishedAts := make([]time.Time, 0, n)
	for _, j := range batch {
		examIDs = append(examIDs, j.ExamID)
		users = append(users, j.UserID)
		finishedAts = append(finishedAts, j.FinishedAt)
	}

	_, err := w.pool.Exec(ctx, `
		UPDATE exam_attempts AS a
		SET status      = 'COMPLETED',
		    finished_at = t.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::timestamptz[]
		) AS t (exam_id, user_id, finished_at)
		WHERE a.exam_id = t.exam_id
		  AND a.user_id = t.user_id`,
		examIDs, users, finishedAts,
	)
	return err
}

func (w *CompletionWorker) complete(ctx context.Context, j model.CompletionJob) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED', finished_at = $1
		 WHERE exam_id = $2 AND user_id = $3`,
		j.FinishedAt, j.ExamID, j.UserID,
	)
	return err
}

// clearProgress is best-effort: the keys expire on their own after the
// deadline grace period.
func (w *CompletionWorker) clearProgress(ctx context.Context, done []model.CompletionJob) {
	for _, j := range done {
		if err := w.progress.Clear(ctx, j.ExamID, j.UserID); err != nil {
			w.log.Warn().Err(err).Int("user_id", j.UserID).Str("exam_id", j.ExamID.String()).Msg("Failed to clear progress keys")
		}
	}
}
