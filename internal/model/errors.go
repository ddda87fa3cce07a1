package model

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks errors raised while plugins build the model or the
// storage mapping. They are fatal: the service must not start.
var ErrConfiguration = errors.New("configuration error")

// ErrFrozen is wrapped by every registration attempted after LinkEntityTypes.
var ErrFrozen = errors.New("model registry is frozen")

// ConfigError describes a problem in the model or mapping definition.
type ConfigError struct {
	// Op is the registration step that failed, e.g. "register entity property"
	Op string
	// Name is the offending entity type, property, table or column
	Name string
	// Reason is a human readable description
	Reason string
	// Err is an optional underlying cause
	Err error
}

// NewConfigError creates a ConfigError.
func NewConfigError(op, name, reason string) *ConfigError {
	return &ConfigError{Op: op, Name: name, Reason: reason}
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%s '%s': %s", e.Op, e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrConfiguration and the underlying cause to errors.Is.
func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

func frozenError(op, name string) error {
	return &ConfigError{Op: op, Name: name, Reason: "registration after initialization", Err: ErrFrozen}
}
