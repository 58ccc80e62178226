package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/session"
)

// classifyError maps domain errors onto an HTTP status and API error code.
// The order matters: specific sentinels are checked before error kinds.
func classifyError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusNotFound, response.ErrInvalidExamToken
	case errors.Is(err, service.ErrExamInactive):
		return http.StatusForbidden, response.ErrExamInactive
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusForbidden, response.ErrExamNotStarted
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, service.ErrNoAttempt):
		return http.StatusForbidden, response.ErrNotJoined
	case errors.Is(err, service.ErrSubmissionPending), errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict, response.ErrSubmissionPending
	case errors.Is(err, session.ErrNoQuestions):
		return http.StatusNotFound, response.ErrNoQuestions
	case errors.Is(err, session.ErrConfirmationRequired):
		return http.StatusConflict, response.ErrConfirmRequired
	case errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrNotSuspended),
		errors.Is(err, session.ErrNotSubmitting),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusUnprocessableEntity, response.ErrValidation
	case errors.Is(err, apperror.ErrProctoringSignal):
		return http.StatusConflict, response.ErrFullscreenRejected
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, apperror.ErrNetwork):
		return http.StatusServiceUnavailable, response.ErrNetwork
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromError writes the error envelope for err, logging server faults.
func failFromError(c *gin.Context, log zerolog.Logger, err error, msg string) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Debug().Err(err).Str("code", string(code)).Msg(msg)
	}
	response.Fail(c, status, code)
}
