package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cowaramupagencies/gas/store"
)

// ValidationError reports input that cannot be accepted. Nothing is written.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func invalid(format string, args ...any) error {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// CapacityError reports that attaching an order would push a run past its
// counted-bottle limit.
type CapacityError struct {
	RunID     string
	RunNumber int
	Used      int
	Adding    int
	Limit     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("run %d is full: %d in use + %d requested exceeds limit %d", e.RunNumber, e.Used, e.Adding, e.Limit)
}

// RunLockedError reports a mutation attempted against a completed run.
type RunLockedError struct {
	RunID string
	Op    string
}

func (e *RunLockedError) Error() string {
	return fmt.Sprintf("run %s is completed: %s not allowed", e.RunID, e.Op)
}

// NoActiveManifestError reports a delivery toggle on a run that has never
// been dispatched with a generated manifest.
type NoActiveManifestError struct {
	RunID string
}

func (e *NoActiveManifestError) Error() string {
	return fmt.Sprintf("run %s has no active manifest; generate one first", e.RunID)
}

// IncompleteOrdersError reports a completion attempt while orders remain
// undelivered, or on an empty run.
type IncompleteOrdersError struct {
	RunID       string
	Undelivered int
	Total       int
}

func (e *IncompleteOrdersError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("run %s has no orders", e.RunID)
	}
	return fmt.Sprintf("run %s has %d of %d orders undelivered", e.RunID, e.Undelivered, e.Total)
}

// InvalidDateError reports a date that is not a real YYYY-MM-DD calendar day.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: want YYYY-MM-DD", e.Value)
}

// NotFoundError reports a reference to a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

// notFound converts a store miss into a NotFoundError and passes any other
// error through.
func notFound(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// Error codes reported to remote callers.
const (
	CodeValidation       = "validation"
	CodeCapacity         = "capacity"
	CodeRunLocked        = "run_locked"
	CodeNoActiveManifest = "no_active_manifest"
	CodeIncompleteOrders = "incomplete_orders"
	CodeInvalidDate      = "invalid_date"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

// ErrorCode classifies err by its domain error type.
func ErrorCode(err error) string {
	switch {
	case errors.As(err, new(*ValidationError)):
		return CodeValidation
	case errors.As(err, new(*CapacityError)):
		return CodeCapacity
	case errors.As(err, new(*RunLockedError)):
		return CodeRunLocked
	case errors.As(err, new(*NoActiveManifestError)):
		return CodeNoActiveManifest
	case errors.As(err, new(*IncompleteOrdersError)):
		return CodeIncompleteOrders
	case errors.As(err, new(*InvalidDateError)):
		return CodeInvalidDate
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
