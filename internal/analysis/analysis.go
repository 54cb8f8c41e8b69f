package analysis

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrServiceUnavailable = errors.New("analysis service unavailable")
	ErrRateLimited        = errors.New("analysis rate limited")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrAccessDenied       = errors.New("analysis access denied")
	// ErrOperationFailed is reported when the service finishes an operation with status failed.
	ErrOperationFailed = errors.New("analysis operation failed")
)

// Status is the state of a long-running analysis operation.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OperationHandle is the opaque token identifying a submitted analysis.
type OperationHandle string

// PollResult is one observation of an operation. Result is set for StatusCompleted
// and Err for StatusFailed.
type PollResult struct {
	Status Status
	Result []byte
	Err    error
}

// Client submits documents for analysis and polls their operations.
type Client interface {
	Submit(ctx context.Context, document []byte) (OperationHandle, error)
	Poll(ctx context.Context, handle OperationHandle) (PollResult, error)
}

// ServiceError carries the HTTP-level detail of a failed call. It unwraps to one of the
// package sentinels so callers can classify it with errors.Is.
type ServiceError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Kind       error
	retryAfter time.Duration
}

// NewServiceError builds a ServiceError; retryAfter is the server-suggested delay, if any.
func NewServiceError(op string, statusCode int, code, message string, kind error, retryAfter time.Duration) *ServiceError {
	return &ServiceError{Op: op, StatusCode: statusCode, Code: code, Message: message, Kind: kind, retryAfter: retryAfter}
}

func (e *ServiceError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += ": http status " + strconv.Itoa(e.StatusCode)
	}
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Kind }

// RetryAfter returns the server-suggested delay before retrying, or zero.
func (e *ServiceError) RetryAfter() time.Duration { return e.retryAfter }
