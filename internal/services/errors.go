// Package services defines the business logic for charging sessions.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingFields is returned when a create payload lacks one or more
	// required keys. The concrete error is a *MissingFieldsError.
	ErrMissingFields = errors.New("missing required fields")

	// ErrNoValidFields is returned when an update payload contains no key from
	// the updatable column set.
	ErrNoValidFields = errors.New("no valid fields to update")

	// ErrInvalidField is returned when a supplied value cannot be converted to
	// its column type. The concrete error is a *FieldError.
	ErrInvalidField = errors.New("invalid field value")

	// ErrSessionNotFound indicates that no charging session has the given id.
	ErrSessionNotFound = errors.New("charging session not found")

	// ErrDuplicateSession is returned when a session with the same vehicle and
	// start time already exists.
	ErrDuplicateSession = errors.New("charging session already exists")
)

// MissingFieldsError lists the required keys absent from a create payload,
// in the order they are declared as required.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

// FieldError reports the key whose value failed to decode.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid value for %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidField) hold for any *FieldError.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidField }
