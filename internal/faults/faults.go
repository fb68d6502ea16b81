/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package faults defines the error kinds shared by the retention pipeline.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaboratorUnavailable marks a failed or timed out call to an external service.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrIdentityAmbiguous marks an item that cannot be mapped to exactly one lookup key.
	ErrIdentityAmbiguous = errors.New("identity ambiguous")

	// ErrNotFound is returned by collaborators when the target no longer exists.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError reports an invalid configuration value. It is fatal at load time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// CollaboratorError wraps a failure of a named external service.
type CollaboratorError struct {
	Service string
	Op      string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is makes every CollaboratorError match ErrCollaboratorUnavailable.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

// Unavailable wraps err as a collaborator failure. A nil err stays nil.
func Unavailable(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Service: service, Op: op, Err: err}
}

// ExecutionError reports a rejected destructive step for a single item.
type ExecutionError struct {
	ItemID int
	Step   string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("item %d: %s failed: %v", e.ItemID, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
