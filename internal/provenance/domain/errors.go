package domain

import (
	"errors"
	"fmt"
)

// Constraint kinds. A ConstraintViolation always wraps one of these.
var (
	ErrTypeMismatch       = errors.New("artifact type mismatch")
	ErrCycleDetected      = errors.New("cycle detected")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrMissingLogRef      = errors.New("error job requires a log reference")
	ErrRootWithParents    = errors.New("root artifact cannot have parents")
	ErrUnknownOutputSlot  = errors.New("unknown output slot")
	ErrInvalidBinding     = errors.New("invalid parameter binding")
	ErrFileRoleRejected   = errors.New("file role not accepted by artifact type")
	ErrInvalidVisibility  = errors.New("invalid visibility")
	ErrDuplicateLink      = errors.New("analysis already linked to artifact")
	ErrUnknownArtifactRef = errors.New("unknown artifact reference")
	ErrFailedJobOutput    = errors.New("failed job cannot produce artifacts")
)

// ConstraintViolation reports an operation that would break a provenance
// graph invariant. The whole unit of work it happened in must be rolled back.
type ConstraintViolation struct {
	Kind error
	Msg  string
}

func (e *ConstraintViolation) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ConstraintViolation) Unwrap() error { return e.Kind }

// Violation creates a ConstraintViolation of the given kind.
func Violation(kind error, format string, args ...any) error {
	return &ConstraintViolation{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when an artifact, job or log entry does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
