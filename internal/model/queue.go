package model

import (
	"time"

	"github.com/google/uuid"
)

// Persistence jobs pushed onto the Redis work queues and drained into
// PostgreSQL by the workers.

// ActivityJob persists one activity log entry.
type ActivityJob struct {
	UserID    int          `json:"user_id"`
	ExamID    uuid.UUID    `json:"exam_id"`
	Type      ActivityType `json:"type"`
	Timestamp int64        `json:"timestamp"`
}

// AnswerJob upserts one row of attempt_answers. A nil field leaves the
// stored column untouched. Jobs saved before the attempt's join time belong
// to a reset attempt and are discarded.
type AnswerJob struct {
	UserID     int          `json:"user_id"`
	ExamID     uuid.UUID    `json:"exam_id"`
	QuestionID uuid.UUID    `json:"q_id"`
	Selected   *OptionLabel `json:"selected,omitempty"`
	Flagged    *bool        `json:"flagged,omitempty"`
	SavedAt    time.Time    `json:"saved_at"`
}

// LayoutJob records an attempt's deadline and question layout. Like
// AnswerJob it only applies to an attempt joined at or before SavedAt.
type LayoutJob struct {
	UserID   int              `json:"user_id"`
	ExamID   uuid.UUID        `json:"exam_id"`
	Deadline time.Time        `json:"deadline"`
	Layout   []QuestionLayout `json:"layout"`
	SavedAt  time.Time        `json:"saved_at"`
}

// CompletionJob marks an attempt completed after its result is stored.
type CompletionJob struct {
	UserID     int       `json:"user_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	FinishedAt time.Time `json:"finished_at"`
}
