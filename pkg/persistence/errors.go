package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound is the root of every not-found error below.
	ErrNotFound = errors.New("not found")

	ErrParentNotFound      = fmt.Errorf("parent %w", ErrNotFound)
	ErrParentStateNotFound = fmt.Errorf("parent state %w", ErrNotFound)
	ErrDraftNotFound       = fmt.Errorf("draft %w", ErrNotFound)
	ErrRecordNotFound      = fmt.Errorf("record %w", ErrNotFound)
	ErrIdentifierNotFound  = fmt.Errorf("identifier %w", ErrNotFound)

	// ErrAlreadyExists indicates a unique key is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// EntityError wraps store errors with the entity they concern.
type EntityError struct {
	Op     string // Operation being performed (e.g., "DraftByID", "SaveRecord")
	Entity string // Entity kind (e.g., "draft", "identifier")
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error is any not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}

func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func IsIdentifierNotFound(err error) bool {
	return errors.Is(err, ErrIdentifierNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
