// Package services defines the business logic for blog comments and their
// moderation. This file centralizes service-level error values so that they
// can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrValidation is matched (via errors.Is) by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited is returned when the submitting identity has used up its
	// allowance for the current window.
	ErrRateLimited = errors.New("too many submissions")

	// ErrNotConfigured is returned when the comment store is not wired
	// (no database configured).
	ErrNotConfigured = errors.New("comment store not configured")

	// ErrStoreUnavailable wraps connectivity failures of a backing store
	// (database or rate-limit store).
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCommentNotFound indicates that the moderation target does not exist.
	ErrCommentNotFound = errors.New("comment not found")
)

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// storeErr maps connectivity failures to ErrStoreUnavailable and returns
// every other error unchanged.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
