package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndUser retrieves the attempt for a specific exam-user combination.
func (r *AttemptRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, user_id, joined_at, deadline, finished_at, status
		 FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	).Scan(&a.ID, &a.ExamID, &a.UserID, &a.JoinedAt, &a.Deadline, &a.FinishedAt, &a.Status)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts an attempt when the user joins. Joining twice keeps the
// original row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, user_id, status, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id, joined_at, status`,
		a.ExamID, a.UserID, model.AttemptStatusInProgress, a.JoinedAt,
	).Scan(&a.ID, &a.JoinedAt, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetByExamAndUser(ctx, a.ExamID, a.UserID)
		if getErr != nil {
			return getErr
		}
		*a = *existing
		return nil
	}
	return err
}

// GetProgress loads the persisted layout, deadline and answers of an
// attempt. It is the fallback when the Redis copy has expired.
func (r *AttemptRepository) GetProgress(ctx context.Context, examID uuid.UUID, userID int) (*model.Progress, error) {
	p := &model.Progress{
		Answers: make(map[uuid.UUID]model.OptionLabel),
		Flags:   make(map[uuid.UUID]bool),
	}
	var deadline *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT deadline, COALESCE(layout, '[]'::jsonb)
		 FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2 AND status = 'IN_PROGRESS'`, examID, userID,
	).Scan(&deadline, &p.Layout)
	if err != nil {
		return nil, err
	}
	if deadline == nil {
		return nil, pgx.ErrNoRows
	}
	p.Deadline = *deadline

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected, flagged
		 FROM attempt_answers
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var qid uuid.UUID
		var selected *string
		var flagged bool
		if err := rows.Scan(&qid, &selected, &flagged); err != nil {
			return nil, err
		}
		if selected != nil && *selected != "" {
			p.Answers[qid] = model.OptionLabel(*selected)
		}
		if flagged {
			p.Flags[qid] = true
		}
	}
	return p, rows.Err()
}

// Delete removes an attempt and its saved answers so the user can retake
// the exam.
func (r *AttemptRepository) Delete(ctx context.Context, examID uuid.UUID, userID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM attempt_answers WHERE exam_id = $1 AND user_id = $2`, examID, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM exam_attempts WHERE exam_id = $1 AND user_id = $2`, examID, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM results WHERE exam_id = $1 AND user_id = $2`, examID, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
