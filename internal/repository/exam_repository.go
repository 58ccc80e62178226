package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const examColumns = `id, title, subject, duration_minutes, starts_at, shuffle_questions, shuffle_options, active, access_token`

// ExamRepository handles exam configuration data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.ExamConfig, error) {
	e := &model.ExamConfig{}
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes, &e.StartsAt,
		&e.ShuffleQuestions, &e.ShuffleOptions, &e.Active, &e.AccessToken)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamConfig, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// GetByToken retrieves an exam by access token, ignoring case.
func (r *ExamRepository) GetByToken(ctx context.Context, token string) (*model.ExamConfig, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE UPPER(access_token) = UPPER($1)`, token))
}

// ListActive returns every active exam, soonest first.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.ExamConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE active = TRUE ORDER BY starts_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamConfig
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamConfig) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, subject, duration_minutes, starts_at, shuffle_questions, shuffle_options, active, access_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		e.Title, e.Subject, e.DurationMinutes, e.StartsAt, e.ShuffleQuestions, e.ShuffleOptions, e.Active, e.AccessToken,
	).Scan(&e.ID)
}
