package catalog

import (
	"errors"
	"fmt"
)

// Registry validation errors. All of them are fatal for a migration run and are
// reported wrapped in a RegistryValidationError.
var (
	ErrUnknownType      = errors.New("unknown artifact type")
	ErrDuplicateType    = errors.New("duplicate artifact type")
	ErrDuplicateCommand = errors.New("duplicate command")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnknownSoftware  = errors.New("unknown software")
	ErrSignatureChanged = errors.New("command signature changed")
	ErrTypeChanged      = errors.New("artifact type changed")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrRegistryFrozen   = errors.New("registry is frozen")
)

// Binding errors. These describe a parameter binding that does not satisfy a
// command signature.
var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrValueType        = errors.New("value does not match parameter type")
)

// RegistryValidationError reports an inconsistent type registry or command catalog.
type RegistryValidationError struct {
	Kind error
	Msg  string
}

func (e *RegistryValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return "registry validation: " + e.Kind.Error()
	}
	return fmt.Sprintf("registry validation: %s: %s", e.Kind.Error(), e.Msg)
}

func (e *RegistryValidationError) Unwrap() error { return e.Kind }

func validationf(kind error, format string, args ...any) error {
	return &RegistryValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
