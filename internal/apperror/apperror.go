// Package apperror defines the error taxonomy shared by the exam engine,
// its collaborators and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindNetwork          Kind = "NETWORK"
	KindValidation       Kind = "VALIDATION"
	KindProctoringSignal Kind = "PROCTORING_SIGNAL"
)

// Sentinels usable with errors.Is. Any *Error of the same Kind matches.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrProctoringSignal = &Error{Kind: KindProctoringSignal}
)

// Error carries a Kind, the failing operation, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, kindText(e.Kind), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, kindText(e.Kind))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", kindText(e.Kind), e.Err)
	default:
		return kindText(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match on Kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func kindText(k Kind) string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindNetwork:
		return "network failure"
	case KindValidation:
		return "validation failed"
	case KindProctoringSignal:
		return "proctoring signal rejected"
	default:
		return "error"
	}
}

// NotFound wraps err as a NotFound error for op.
func NotFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// Network wraps err as a transient I/O failure for op.
func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Validation builds a ValidationError with a formatted message.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// ProctoringSignal wraps a rejected browser capability request.
func ProctoringSignal(op string, err error) error {
	return &Error{Kind: KindProctoringSignal, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Retryable reports whether the operation that produced err may succeed on retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindNotFound:
		return true
	default:
		return false
	}
}

// FromStore maps a pgx or redis error into the taxonomy.
// Nil stays nil; errors already classified are returned unchanged.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, redis.Nil) {
		return NotFound(op, err)
	}
	return Network(op, err)
}
