package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrRateUnavailable = errors.New("conversion rate unavailable")
	ErrLogClosed       = errors.New("event log closed")
	ErrContextDone     = errors.New("context cancelled")
)

// ConfigError is the fatal, construction-time error class: a strategy mode
// referencing an instrument missing from its allow-list, an unknown mode, or
// a missing required configuration key. It blocks startup of the affected
// mode and is never produced during a decision tick.
type ConfigError struct {
	Component string
	Reason    string
}

// NewConfigError builds a ConfigError for the given component.
func NewConfigError(component, format string, args ...any) *ConfigError {
	return &ConfigError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.Component + ": configuration error: " + e.Reason
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
