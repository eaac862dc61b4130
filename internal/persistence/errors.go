package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed input caught before any write reaches
// the engine. It never leaves partial state behind.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError reports an absent parent entity, e.g. adding a task to a
// plan that does not exist for the agent. The ids are part of the message
// so the caller can tell which lookup failed.
type NotFoundError struct {
	Entity  string
	ID      string
	AgentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found for agent %s", e.Entity, e.ID, e.AgentID)
}

// ConstraintError wraps an engine-level rejection (NOT NULL, CHECK, UNIQUE,
// FK). Inside the orchestrator it triggers a full rollback; the wrapped
// error is preserved for errors.Is/As.
type ConstraintError struct {
	Op  string
	Err error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation in %s: %v", e.Op, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// isConstraintViolation detects SQLITE_CONSTRAINT family errors by message,
// same approach as isSQLiteBusy.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "(19)") // SQLITE_CONSTRAINT
}

// wrapConstraint converts engine constraint rejections into ConstraintError
// and leaves every other error untouched.
func wrapConstraint(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraintViolation(err) {
		return &ConstraintError{Op: op, Err: err}
	}
	return err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConstraint reports whether err is a ConstraintError.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}
