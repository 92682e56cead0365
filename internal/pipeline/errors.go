package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies run-level failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindSourceRead    ErrorKind = "source_read"
	KindCancelled     ErrorKind = "cancelled"
	KindInternal      ErrorKind = "internal"
)

// Sentinels for errors.Is on a *RunError.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSourceRead    = errors.New("source read error")
	ErrCancelled     = errors.New("run cancelled")
	ErrInternal      = errors.New("internal error")
)

// RunError is the only error a run reports. Field- and line-level problems
// never surface as a RunError.
type RunError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *RunError) Is(target error) bool {
	switch e.Kind {
	case KindConfiguration:
		return target == ErrConfiguration
	case KindSourceRead:
		return target == ErrSourceRead
	case KindCancelled:
		return target == ErrCancelled
	case KindInternal:
		return target == ErrInternal
	}
	return false
}

func configurationError(format string, args ...any) *RunError {
	return &RunError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}
