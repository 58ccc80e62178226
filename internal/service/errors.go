package service

import "errors"

// Domain errors surfaced to handlers.
var (
	ErrInvalidToken      = errors.New("invalid exam token")
	ErrExamInactive      = errors.New("exam is not active")
	ErrExamNotStarted    = errors.New("exam has not started yet")
	ErrAlreadyCompleted  = errors.New("exam already completed")
	ErrNoAttempt         = errors.New("exam has not been joined")
	ErrSubmissionPending = errors.New("another submission for this attempt is in progress")
)
