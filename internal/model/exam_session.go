package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates persisted attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt is the persisted record of a user's exam attempt.
type Attempt struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	UserID     int           `json:"user_id"`
	JoinedAt   time.Time     `json:"joined_at"`
	Deadline   *time.Time    `json:"deadline,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
}

// QuestionLayout is one question's position in an attempt with its option
// display order, expressed as original labels.
type QuestionLayout struct {
	QuestionID  uuid.UUID     `json:"question_id"`
	OptionOrder []OptionLabel `json:"option_order"`
}

// Progress is the resumable part of an in-flight attempt.
type Progress struct {
	Deadline time.Time                 `json:"deadline"`
	Layout   []QuestionLayout          `json:"layout"`
	Answers  map[uuid.UUID]OptionLabel `json:"answers"`
	Flags    map[uuid.UUID]bool        `json:"flags,omitempty"`
}
