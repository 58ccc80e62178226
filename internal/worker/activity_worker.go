package worker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ActivityWorker consumes the activity queue and appends entries to
// activity_logs with COPY.
type ActivityWorker struct {
	pool     *pgxpool.Pool
	consumer *queueConsumer[model.ActivityJob]
}

func NewActivityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	w := &ActivityWorker{pool: pool}
	w.consumer = &queueConsumer[model.ActivityJob]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistActivityQueue,
		store: store[model.ActivityJob]{bulk: w.bulkInsert, single: w.insert},
		log:   log.With().Str("component", "activity_worker").Logger(),
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.consumer.run(ctx)
}

func (w *ActivityWorker) bulkInsert(ctx context.Context, batch []model.ActivityJob) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, j := range batch {
		rows = append(rows, []interface{}{j.ExamID, j.UserID, string(j.Type), time.UnixMilli(j.Timestamp)})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"activity_logs"},
		[]string{"exam_id", "user_id", "type", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ActivityWorker) insert(ctx context.Context, j model.ActivityJob) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO activity_logs (exam_id, user_id, type, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		j.ExamID, j.UserID, string(j.Type), time.UnixMilli(j.Timestamp),
	)
	return err
}
