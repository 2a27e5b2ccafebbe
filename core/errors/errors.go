// Package errors provides standardized error types and helpers for the Lectern codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnresolvable indicates a stored word address no longer resolves
	ErrUnresolvable = errors.New("address unresolvable")
	// ErrStorage indicates a durable store read or write failure
	ErrStorage = errors.New("storage failure")
	// ErrSyncUnavailable indicates the remote sync collaborator is unreachable
	ErrSyncUnavailable = errors.New("sync unavailable")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
)

// ResolutionError reports a word address that could not be resolved against
// the current flattened text. Resolution failures are recovered locally and
// never surfaced to the user.
type ResolutionError struct {
	VolumeIndex int    // Volume the address belongs to
	WordIndex   uint   // Stored token index
	Anchor      string // Expected anchor token text
	Reason      string // Why resolution failed
}

func (e *ResolutionError) Error() string {
	if e.Anchor != "" {
		return fmt.Sprintf("cannot resolve word %d (%q) in volume %d: %s", e.WordIndex, e.Anchor, e.VolumeIndex, e.Reason)
	}
	return fmt.Sprintf("cannot resolve word %d in volume %d: %s", e.WordIndex, e.VolumeIndex, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return ErrUnresolvable
}

// StorageError represents a durable store failure with context
type StorageError struct {
	Operation string // Operation being performed (e.g., "load", "save", "open")
	Key       string // Store key involved, if any
	Err       error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("failed to %s %q: %v", e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrStorage
}

// PatternError reports a search query that did not compile as a regular
// expression. Callers are expected to fall back to an escaped-literal match.
type PatternError struct {
	Query string // Query as entered
	Err   error  // Compile error from the regexp package
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("query %q is not a valid pattern: %v", e.Query, e.Err)
}

func (e *PatternError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// SyncError represents a failure talking to the remote sync collaborator.
// Retryable errors are transient (network, auth) and carry no local data loss.
type SyncError struct {
	Operation string // "upload", "download", "merge"
	Retryable bool   // Whether the caller should retry later
	Err       error  // Underlying error
}

func (e *SyncError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("sync %s failed (retryable): %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("sync %s failed: %v", e.Operation, e.Err)
}

func (e *SyncError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSyncUnavailable
}

// ImportError represents a rejected annotation import. Imports are all-or-
// nothing: a wrong document type or malformed payload applies no partial merge.
type ImportError struct {
	Expected string // Document type the caller expected ("notes", "bookmarks")
	Got      string // Document type found in the payload, if any
	Reason   string // Human-readable rejection reason
}

func (e *ImportError) Error() string {
	if e.Got != "" && e.Expected != "" {
		return fmt.Sprintf("import rejected: document type is %q, expected %q", e.Got, e.Expected)
	}
	return fmt.Sprintf("import rejected: %s", e.Reason)
}

func (e *ImportError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "note", "bookmark", "volume")
	ID       string // Identifier of the resource
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Helper functions for creating common errors

// NewResolution creates a ResolutionError
func NewResolution(volumeIndex int, wordIndex uint, anchor, reason string) *ResolutionError {
	return &ResolutionError{
		VolumeIndex: volumeIndex,
		WordIndex:   wordIndex,
		Anchor:      anchor,
		Reason:      reason,
	}
}

// NewStorage creates a StorageError
func NewStorage(operation, key string, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		Key:       key,
		Err:       err,
	}
}

// NewPattern creates a PatternError
func NewPattern(query string, err error) *PatternError {
	return &PatternError{
		Query: query,
		Err:   err,
	}
}

// NewSync creates a SyncError
func NewSync(operation string, retryable bool, err error) *SyncError {
	return &SyncError{
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}

// NewImport creates an ImportError
func NewImport(expected, got, reason string) *ImportError {
	return &ImportError{
		Expected: expected,
		Got:      got,
		Reason:   reason,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
