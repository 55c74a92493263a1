package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors.
var (
	// ErrTimeout is wrapped by remote errors raised when a call exceeds its deadline.
	ErrTimeout = errors.New("request timeout")
	// ErrUnreachable is wrapped by remote errors raised when no response was received.
	ErrUnreachable = errors.New("remote unreachable")
	// ErrNotFound means a mutation targeted a note that is not in the record set.
	ErrNotFound = errors.New("note not found")
	// ErrClosed is returned by components used after Close.
	ErrClosed = errors.New("component closed")
)

// RemoteError is the normalized failure of a remote call.
// Status is the HTTP status, 408 for timeouts and 0 when the request never got
// an answer.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote error: %s", e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Timeout reports whether the call was abandoned because of its deadline.
func (e *RemoteError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// NewTimeoutError builds the error returned when a call exceeds its deadline.
func NewTimeoutError() *RemoteError {
	return &RemoteError{Status: http.StatusRequestTimeout, Message: "Request timeout", Err: ErrTimeout}
}

// StatusOf extracts the remote status code of err, or 0.
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// StorageError is a failure of the durable local cache.
// These are never fatal: the in-memory record set stays authoritative.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err originated in the local cache.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// OpError attaches the engine operation and note ID to a failure reported on
// the diagnostic channel.
type OpError struct {
	Op  string
	ID  string
	Err error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
