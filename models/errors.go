package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad or ambiguous user input. Recovered by re-prompting.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a character/realm the profile service does not know.
	ErrNotFound = errors.New("not found")
	// ErrService marks a transient profile service failure.
	ErrService = errors.New("service error")
	// ErrConflict marks a duplicate active registration.
	ErrConflict = errors.New("conflict")
	// ErrStore marks a failed sheet operation.
	ErrStore = errors.New("store error")
	// ErrCancelled marks a conversation the user abandoned or cancelled.
	ErrCancelled = errors.New("cancelled")
)

// StoreError carries the context of a failed sheet operation.
type StoreError struct {
	Op     string
	Sheet  string
	UserID string
	Err    error
}

func (e *StoreError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("store %s on %q for user %s: %v", e.Op, e.Sheet, e.UserID, e.Err)
	}
	return fmt.Sprintf("store %s on %q: %v", e.Op, e.Sheet, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// ServiceError carries the context of a failed profile service call.
// Status is zero for transport failures.
type ServiceError struct {
	Op     string
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrService }
