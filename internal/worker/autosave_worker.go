package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// liveAttempt matches the attempt an answer row u was saved for. It fails for
// rows queued before a participant reset.
const liveAttempt = `
	SELECT 1 FROM exam_attempts ea
	WHERE ea.exam_id = u.exam_id
	  AND ea.user_id = u.user_id
	  AND ea.joined_at <= u.saved_at`

// AutosaveWorker consumes the answers queue and upserts attempt_answers.
type AutosaveWorker struct {
	pool     *pgxpool.Pool
	consumer *queueConsumer[model.AnswerJob]
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	w := &AutosaveWorker{pool: pool}
	w.consumer = &queueConsumer[model.AnswerJob]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistAnswersQueue,
		store: store[model.AnswerJob]{bulk: w.bulkUpsert, single: w.upsert},
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.consumer.run(ctx)
}

// collapse keeps one job per answer row, merging later fields over earlier
// ones so a single statement never touches the same row twice. The merged
// row keeps the earliest SavedAt: if any part predates a reset, none of it
// is written.
func collapse(batch []model.AnswerJob) []model.AnswerJob {
	type rowKey struct {
		exam, question uuid.UUID
		user           int
	}
	index := make(map[rowKey]int, len(batch))
	out := make([]model.AnswerJob, 0, len(batch))
	for _, j := range batch {
		k := rowKey{exam: j.ExamID, question: j.QuestionID, user: j.UserID}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, j)
			continue
		}
		if j.Selected != nil {
			out[i].Selected = j.Selected
		}
		if j.Flagged != nil {
			out[i].Flagged = j.Flagged
		}
		if j.SavedAt.Before(out[i].SavedAt) {
			out[i].SavedAt = j.SavedAt
		}
	}
	return out
}

// The nullable columns travel as NULL when the job leaves them untouched.
func answerColumns(j model.AnswerJob) (selected *string, flagged *bool) {
	if j.Selected != nil {
		s := string(*j.Selected)
		selected = &s
	}
	return selected, j.Flagged
}

func (w *AutosaveWorker) bulkUpsert(ctx context.Context, batch []model.AnswerJob) error {
	rows := collapse(batch)
	n := len(rows)

	examIDs := make([]uuid.UUID, 0, n)
	users := make([]int, 0, n)
	questions := make([]uuid.UUID, 0, n)
	selected := make([]*string, 0, n)
	flagged := make([]*bool, 0, n)
	savedAt := make([]time.Time, 0, n)
	for _, j := range rows {
		s, f := answerColumns(j)
		examIDs = append(examIDs, j.ExamID)
		users = append(users, j.UserID)
		questions = append(questions, j.QuestionID)
		selected = append(selected, s)
		flagged = append(flagged, f)
		savedAt = append(savedAt, j.SavedAt)
	}

	// Insert missing rows and merge selections, then apply only the flags
	// that were given: EXCLUDED cannot tell a defaulted flag from a supplied one.
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO attempt_answers (exam_id, user_id, question_id, selected, flagged)
			SELECT u.exam_id, u.user_id, u.question_id, u.selected, COALESCE(u.flagged, FALSE)
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::uuid[],
				$4::text[],
				$5::bool[],
				$6::timestamptz[]
			) AS u (exam_id, user_id, question_id, selected, flagged, saved_at)
			WHERE EXISTS (`+liveAttempt+`)
			ON CONFLICT (exam_id, user_id, question_id) DO UPDATE
			SET selected   = COALESCE(EXCLUDED.selected, attempt_answers.selected),
			    updated_at = NOW()`,
			examIDs, users, questions, selected, flagged, savedAt,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE attempt_answers AS a
			SET flagged = u.flagged, updated_at = NOW()
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::uuid[],
				$4::bool[],
				$5::timestamptz[]
			) AS u (exam_id, user_id, question_id, flagged, saved_at)
			WHERE u.flagged IS NOT NULL
			  AND a.exam_id = u.exam_id
			  AND a.user_id = u.user_id
			  AND a.question_id = u.question_id
			  AND EXISTS (`+liveAttempt+`)`,
			examIDs, users, questions, flagged, savedAt,
		)
		return err
	})
}

func (w *AutosaveWorker) upsert(ctx context.Context, j model.AnswerJob) error {
	selected, flagged := answerColumns(j)
	_, err := w.pool.Exec(ctx, `
		INSERT INTO attempt_answers (exam_id, user_id, question_id, selected, flagged)
		SELECT u.exam_id, u.user_id, u.question_id, u.selected, COALESCE(u.flagged, FALSE)
		FROM (VALUES ($1::uuid, $2::int, $3::uuid, $4::text, $5::bool, $6::timestamptz))
			AS u (exam_id, user_id, question_id, selected, flagged, saved_at)
		WHERE EXISTS (`+liveAttempt+`)
		ON CONFLICT (exam_id, user_id, question_id) DO UPDATE
		SET selected   = COALESCE(EXCLUDED.selected, attempt_answers.selected),
		    flagged    = COALESCE($5::bool, attempt_answers.flagged),
		    updated_at = NOW()`,
		j.ExamID, j.UserID, j.QuestionID, selected, flagged, j.SavedAt,
	)
	return err
}
