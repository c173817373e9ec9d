package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindClient Kind = iota + 1
	KindNotFound
	KindForbidden
	KindConflict
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownContest       = errors.New("unknown contest")
	ErrUnknownParticipant   = errors.New("participant is not registered for contest")
	ErrInvalidViolationType = errors.New("invalid violation type")
	ErrInvalidFact          = errors.New("invalid submission fact")
	ErrDisqualifiedUnflag   = errors.New("disqualified participant cannot be unflagged")
	ErrAdminOnly            = errors.New("administrator role required")
)

// Error tags an underlying error with the operation that failed and how the
// caller should treat it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Client(op string, err error) error {
	return &Error{Kind: KindClient, Op: op, Err: err}
}

func NotFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

func Forbidden(op string, err error) error {
	return &Error{Kind: KindForbidden, Op: op, Err: err}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Err: err}
}

// Persistence marks a store failure. These are fatal to the triggering
// request and must reach the caller so it can retry.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsClient(err error) bool {
	switch KindOf(err) {
	case KindClient, KindNotFound, KindForbidden, KindConflict:
		return true
	}
	return false
}

func IsPersistence(err error) bool {
	return KindOf(err) == KindPersistence
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindClient:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
