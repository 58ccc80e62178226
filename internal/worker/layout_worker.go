package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// LayoutWorker records each attempt's deadline and question layout on
// exam_attempts so a session can resume after Redis loses its keys.
type LayoutWorker struct {
	pool     *pgxpool.Pool
	consumer *queueConsumer[model.LayoutJob]
}

func NewLayoutWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *LayoutWorker {
	w := &LayoutWorker{pool: pool}
	w.consumer = &queueConsumer[model.LayoutJob]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistLayoutQueue,
		store: store[model.LayoutJob]{bulk: w.bulkUpdate, single: w.update},
		log:   log.With().Str("component", "layout_worker").Logger(),
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *LayoutWorker) Start(ctx context.Context) {
	w.consumer.run(ctx)
}

func (w *LayoutWorker) bulkUpdate(ctx context.Context, batch []model.LayoutJob) error {
	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	users := make([]int, 0, n)
	deadlines := make([]time.Time, 0, n)
	layouts := make([][]byte, 0, n)
	savedAt := make([]time.Time, 0, n)

	for _, j := range batch {
		raw, err := json.Marshal(j.Layout)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, j.ExamID)
		users = append(users, j.UserID)
		deadlines = append(deadlines, j.Deadline)
		layouts = append(layouts, raw)
		savedAt = append(savedAt, j.SavedAt)
	}

	// Rows already holding a deadline keep it: the first layout wins. Jobs
	// saved before the row's join time came from a reset attempt.
	_, err := w.pool.Exec(ctx, `
		UPDATE exam_attempts AS a
		SET deadline = t.deadline,
		    layout   = t.layout
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::timestamptz[],
			$4::jsonb[],
			$5::timestamptz[]
		) AS t (exam_id, user_id, deadline, layout, saved_at)
		WHERE a.exam_id = t.exam_id
		  AND a.user_id = t.user_id
		  AND a.deadline IS NULL
		  AND a.joined_at <= t.saved_at`,
		examIDs, users, deadlines, layouts, savedAt,
	)
	return err
}

func (w *LayoutWorker) update(ctx context.Context, j model.LayoutJob) error {
	raw, err := json.Marshal(j.Layout)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET deadline = $1, layout = $2
		 WHERE exam_id = $3 AND user_id = $4 AND deadline IS NULL AND joined_at <= $5`,
		j.Deadline, raw, j.ExamID, j.UserID, j.SavedAt,
	)
	return err
}
