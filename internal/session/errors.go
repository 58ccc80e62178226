package session

import "errors"

var (
	ErrClosed               = errors.New("session closed")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrNotActive            = errors.New("session is not active")
	ErrNotSuspended         = errors.New("session is not suspended")
	ErrConfirmationRequired = errors.New("finish must be requested before it is confirmed")
	ErrNotSubmitting        = errors.New("session is not submitting")
	ErrSubmitInFlight       = errors.New("submission already in progress")
	ErrNoQuestions          = errors.New("exam has no questions")
)
