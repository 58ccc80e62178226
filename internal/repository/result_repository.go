package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const resultColumns = `id, exam_id, user_id, submitted_at, correct, incorrect, unanswered, score, answers`

// ResultRepository handles scored result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func scanResult(row pgx.Row) (*model.Result, error) {
	res := &model.Result{}
	err := row.Scan(&res.ID, &res.ExamID, &res.UserID, &res.SubmittedAt,
		&res.Correct, &res.Incorrect, &res.Unanswered, &res.Score, &res.Answers)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Insert stores res unless the user already has a result for the exam, in
// which case the stored one is returned and inserted is false.
func (r *ResultRepository) Insert(ctx context.Context, res *model.Result) (stored *model.Result, inserted bool, err error) {
	stored, err = scanResult(r.pool.QueryRow(ctx,
		`INSERT INTO results (exam_id, user_id, submitted_at, correct, incorrect, unanswered, score, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING `+resultColumns,
		res.ExamID, res.UserID, res.SubmittedAt, res.Correct, res.Incorrect, res.Unanswered, res.Score, res.Answers,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	stored, err = r.GetByExamAndUser(ctx, res.ExamID, res.UserID)
	return stored, false, err
}

// GetByExamAndUser retrieves a user's result for an exam.
func (r *ResultRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.Result, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_id = $1 AND user_id = $2`, examID, userID))
}

// ListByExam returns every result for an exam in submission order.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_id = $1 ORDER BY submitted_at, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// ScoresByUser maps each exam the user has a result for to its score.
func (r *ResultRepository) ScoresByUser(ctx context.Context, userID int) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT exam_id, score FROM results WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[uuid.UUID]float64)
	for rows.Next() {
		var (
			examID uuid.UUID
			score  float64
		)
		if err := rows.Scan(&examID, &score); err != nil {
			return nil, err
		}
		scores[examID] = score
	}
	return scores, rows.Err()
}
