// Package simerr defines the error taxonomy shared by the simulation engine.
package simerr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a configuration value that is absent or unusable
// for a feature or stage a company actually reached. It is recoverable: the
// batch skips the company and continues.
type ConfigurationError struct {
	Component string
	Key       string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: configuration missing for %q", e.Component, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError with an optional cause.
func NewConfigurationError(component, key string, cause error) *ConfigurationError {
	return &ConfigurationError{Component: component, Key: key, Err: cause}
}

// PreconditionError reports a component invoked with data that violates its
// contract. It is a programming error and must never be swallowed.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Op, e.Reason)
}

// NewPreconditionError builds a PreconditionError.
func NewPreconditionError(op, reason string) *PreconditionError {
	return &PreconditionError{Op: op, Reason: reason}
}

// RangeError reports a configured probability, rate or weight outside its
// allowed interval. It is raised while validating configuration, before any
// company is processed.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("config: %s = %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// IsConfiguration returns true if err (or any error in its chain) is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsPrecondition returns true if err (or any error in its chain) is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsRange returns true if err (or any error in its chain) is a RangeError.
func IsRange(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}
