package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ActivityRepository reads the persisted activity log.
// Writes go through the activity queue and ActivityWorker.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// ListByExam returns an exam's activity log, newest first.
func (r *ActivityRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ActivityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, exam_id, type, recorded_at
		 FROM activity_logs
		 WHERE exam_id = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT $2`, examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.ActivityEvent{}
	for rows.Next() {
		var e model.ActivityEvent
		if err := rows.Scan(&e.UserID, &e.ExamID, &e.Type, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
