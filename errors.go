package cellar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by backends when a record or blob does not exist.
	// Store and Model translate it into a nil record.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record id is already known to the store
	ErrConflict = errors.New("record already exists")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrTransform matches every *TransformError.
	ErrTransform = errors.New("transform failed")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage failed")
)

var (
	// ErrNoFileData is returned when a non-directory record is created without a payload.
	ErrNoFileData = &ValidationError{Message: "No file data"}
	// ErrUndetectableType is returned when the payload type can neither be sniffed nor was declared.
	ErrUndetectableType = &ValidationError{Message: "Cannot detect file type"}
	// ErrDirectoryData is returned when a payload is attached to a directory record.
	ErrDirectoryData = &ValidationError{Message: "Directory cannot hold file data"}
)

// ValidationError reports input that violates a model rule before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransformError reports a field value that could not be transformed, or a
// schema field naming a type that is not registered.
type TransformError struct {
	Field   string
	Message string
	Err     error
}

func (e *TransformError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

func (e *TransformError) Is(target error) bool {
	return target == ErrTransform
}

// StorageError wraps a failure of the underlying medium (metadata repository
// or blob store).
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
