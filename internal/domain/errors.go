package domain

import (
	"errors"
	"fmt"
)

// Common domain errors surfaced by engine components.
var (
	// ErrInvalidConfiguration indicates that a component was constructed
	// with out-of-range or inconsistent configuration. It is always
	// raised at construction, before any generation begins.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBudgetExceeded indicates that a search or sampling run consumed
	// its generation budget. Controllers terminate normally on it and
	// report it via the trace, not as a fatal error.
	ErrBudgetExceeded = errors.New("generation budget exceeded")

	// ErrNoCandidates indicates that a run produced no usable candidates.
	ErrNoCandidates = errors.New("no candidates produced")

	// ErrUnknownController indicates that a controller kind is not
	// registered with the engine.
	ErrUnknownController = errors.New("unknown controller kind")
)

// ConfigError describes a specific invalid configuration field.
// It wraps ErrInvalidConfiguration so callers can errors.Is against the
// sentinel while still seeing which field was bad.
type ConfigError struct {
	// Component names the component whose configuration failed.
	Component string

	// Field names the offending configuration field.
	Field string

	// Reason describes why the value was rejected.
	Reason string
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Component, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfiguration for sentinel matching.
func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// NewConfigError creates a ConfigError for the given component and field.
func NewConfigError(component, field, reason string) *ConfigError {
	return &ConfigError{Component: component, Field: field, Reason: reason}
}
