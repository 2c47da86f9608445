package keytransactions

import (
	"errors"
	"fmt"
)

var (
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrProjectNotFound   = errors.New("project not found")
	ErrLimitExceeded     = errors.New("key transaction limit exceeded")
	ErrDuplicate         = errors.New("key transaction already added")
	ErrNotFound          = errors.New("key transaction not found")
	ErrInvalidProjects   = errors.New("invalid project ids")
	ErrExportUnavailable = errors.New("export storage not configured")
)

// ValidationError is a client error whose Detail is safe to return verbatim.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func validationf(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}
