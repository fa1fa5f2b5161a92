// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a failure for the handler boundary.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindInvalidInput Kind = "invalid_input"
	KindAlreadyVoted Kind = "already_voted"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Reasons attached to Unauthorized so clients can tell "re-authenticate" from "retry".
const (
	ReasonSessionExpired   = "session_expired"
	ReasonSessionInvalid   = "session_invalid"
	ReasonChallengeExpired = "challenge_expired"
	ReasonBadSignature     = "bad_signature"
)

// Error is the typed failure returned by every service operation.
// Msg is always safe to show to the caller; Err never is.
type Error struct {
	Kind   Kind
	Msg    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Unauthorized(reason, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason, Msg: msg}
}

func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Msg: msg} }
func InvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, Msg: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Msg: msg} }
func AlreadyVoted() *Error           { return &Error{Kind: KindAlreadyVoted, Msg: "vote already submitted"} }

func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps a datastore or infrastructure failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the Kind of err, treating unknown errors as Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
