// Package services implements the draft and record versioning workflow.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/drafts/pkg/permissions"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/validation"
)

var (
	// ErrConflict reports a stale revision token (409 Conflict).
	ErrConflict = errors.New("conflict")

	// ErrStorageFailure wraps any store error that is not a domain error (500).
	ErrStorageFailure = errors.New("storage failure")

	// ErrInvalidRequest reports malformed input that never reached the workflow (400).
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	CodeRevisionMismatch = "REVISION_MISMATCH"
	CodeStorageFailure   = "STORAGE_FAILURE"
	CodeInvalidRequest   = "INVALID_REQUEST"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}

func IsPermissionDenied(err error) bool {
	return permissions.IsPermissionDenied(err)
}

func IsValidationError(err error) bool {
	return validation.IsValidationFailed(err) || errors.Is(err, ErrInvalidRequest)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

func checkRevision(op string, expected *int, actual int) error {
	if expected == nil || *expected == actual {
		return nil
	}

	return &ServiceError{
		Op:      op,
		Code:    CodeRevisionMismatch,
		Message: fmt.Sprintf("revision %d does not match current revision %d", *expected, actual),
		Err:     ErrConflict,
	}
}

func invalidRequest(op, message string) error {
	return &ServiceError{
		Op:      op,
		Code:    CodeInvalidRequest,
		Message: message,
		Err:     ErrInvalidRequest,
	}
}

// classify passes domain errors through and turns everything else into a storage failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError

	switch {
	case IsNotFound(err), IsPermissionDenied(err), IsValidationError(err), IsConflictError(err), IsStorageFailure(err):
		return err
	case errors.As(err, &serviceErr):
		return err
	}

	return &ServiceError{
		Op:   op,
		Code: CodeStorageFailure,
		Err:  fmt.Errorf("%w: %w", ErrStorageFailure, err),
	}
}
