// Package dmxerr holds the error taxonomy shared by the lighting core.
//
// Every concrete error matches one sentinel through errors.Is, so callers can
// branch on the kind without caring which package produced it:
//
//	if errors.Is(err, dmxerr.ErrAddressConflict) {
//	    // pick another start address
//	}
package dmxerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed fixture, scene or chaser record.
	ErrValidation = errors.New("validation failed")

	// ErrRange marks a channel, value or address outside legal bounds.
	ErrRange = errors.New("out of range")

	// ErrAddressConflict marks overlapping patch ranges.
	ErrAddressConflict = errors.New("address conflict")

	// ErrDevice marks an unavailable adapter or an I/O failure on it.
	ErrDevice = errors.New("device error")

	// ErrNotFound marks an unknown definition, instance, scene or chaser.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes one rejected field of a record.
type ValidationError struct {
	Source string // file path or record id
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Source, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(source, field, format string, args ...any) *ValidationError {
	return &ValidationError{Source: source, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RangeError reports a value outside [Min, Max].
type RangeError struct {
	What  string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.What, e.Value, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool { return target == ErrRange }

// CheckRange returns a RangeError when v is outside [lo, hi].
func CheckRange(what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &RangeError{What: what, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// AddressConflictError names the instance already holding part of the
// requested range.
type AddressConflictError struct {
	Start, End                 int
	ConflictID                 string
	ConflictName               string
	ConflictStart, ConflictEnd int
}

func (e *AddressConflictError) Error() string {
	return fmt.Sprintf("addresses %d-%d overlap %q (%s) at %d-%d",
		e.Start, e.End, e.ConflictName, e.ConflictID, e.ConflictStart, e.ConflictEnd)
}

func (e *AddressConflictError) Is(target error) bool { return target == ErrAddressConflict }

// DeviceError wraps a failure of the serial adapter.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	dev := e.Device
	if dev == "" {
		dev = "<any>"
	}
	if e.Err == nil {
		return fmt.Sprintf("device %s: %s failed", dev, e.Op)
	}
	return fmt.Sprintf("device %s: %s: %v", dev, e.Op, e.Err)
}

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

func (e *DeviceError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown identifier of the given kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound is shorthand for a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}
