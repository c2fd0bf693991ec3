package pledge

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes ledger errors.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the caller lacks authority over the admin or pledge.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeInvalidState indicates a pledge is not in the state an operation requires.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeNotFound indicates an admin or pledge id is out of range.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTypeMismatch indicates an admin is of the wrong kind for the operation.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeLimitExceeded indicates a delegation chain or nesting depth bound.
	ErrCodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"

	// ErrCodeProjectCanceled indicates the target project (or an ancestor) is canceled.
	ErrCodeProjectCanceled ErrorCode = "PROJECT_CANCELED"

	// ErrCodeInsufficientBalance indicates a pledge holds less than the amount moved.
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	// ErrCodePluginNotWhitelisted indicates plugin code missing from the allow-list.
	ErrCodePluginNotWhitelisted ErrorCode = "PLUGIN_NOT_WHITELISTED"

	// ErrCodeInvariantViolation indicates a broken invariant: a hook raised an
	// amount, an unreachable dispatch branch, or corrupted back-references.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
)

// Error is returned by every ledger operation that fails a domain rule.
// Infrastructure failures (store, vault, plugin errors) are wrapped instead.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context such as ids and amounts.
	Details map[string]string
}

// Sentinel values for errors.Is. They match any *Error with the same code.
var (
	ErrUnauthorized         = &Error{Code: ErrCodeUnauthorized}
	ErrInvalidState         = &Error{Code: ErrCodeInvalidState}
	ErrNotFound             = &Error{Code: ErrCodeNotFound}
	ErrTypeMismatch         = &Error{Code: ErrCodeTypeMismatch}
	ErrLimitExceeded        = &Error{Code: ErrCodeLimitExceeded}
	ErrProjectCanceled      = &Error{Code: ErrCodeProjectCanceled}
	ErrInsufficientBalance  = &Error{Code: ErrCodeInsufficientBalance}
	ErrPluginNotWhitelisted = &Error{Code: ErrCodePluginNotWhitelisted}
	ErrInvariantViolation   = &Error{Code: ErrCodeInvariantViolation}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a ledger error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) with(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = fmt.Sprint(value)
	return e
}

func errInsufficient(id PledgeID, have, want uint64) *Error {
	return newError(ErrCodeInsufficientBalance, "pledge %d holds %d, cannot move %d", id, have, want).
		with("pledge", id).with("amount", have).with("requested", want)
}
