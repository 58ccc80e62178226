package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExamConfig is the read-only exam definition consumed by the session engine.
type ExamConfig struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Subject          string    `json:"subject"`
	DurationMinutes  int       `json:"duration_minutes"`
	StartsAt         time.Time `json:"starts_at"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
	ShuffleOptions   bool      `json:"shuffle_options"`
	Active           bool      `json:"active"`
	AccessToken      string    `json:"access_token,omitempty"`
}

// Started reports whether the exam's start time has passed at now.
func (e *ExamConfig) Started(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

// TokenMatches compares an entered token against the exam's access token,
// ignoring case and surrounding whitespace.
func (e *ExamConfig) TokenMatches(token string) bool {
	if e.AccessToken == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(token), e.AccessToken)
}

// Public returns a copy safe to hand to students.
func (e ExamConfig) Public() ExamConfig {
	e.AccessToken = ""
	return e
}

// JoinExamRequest is the payload for a student entering an exam by token.
type JoinExamRequest struct {
	Token string `json:"token" binding:"required,min=4,max=20"`
}
