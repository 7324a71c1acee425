package generation

import (
	"errors"
	"fmt"
)

// ErrGenerationFailed matches every error returned by a Generator.
var ErrGenerationFailed = errors.New("generation failed")

// ErrUnavailable is returned by constructors when required credentials are missing.
var ErrUnavailable = errors.New("generation provider unavailable")

// Kind classifies generation failures.
type Kind string

const (
	Connectivity   Kind = "connectivity"
	ProviderStatus Kind = "provider_status"
)

// Error is a classified generation failure.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation failed (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrGenerationFailed }

// KindOf returns the failure kind of err, or "" when err is not a generation error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
