package batch

import (
	"context"
	"errors"
	"net"
	"strings"

	"docintel-batch/internal/analysis"
	"docintel-batch/internal/shared/storage/object"
)

// ErrorKind names the step a job failed in.
type ErrorKind string

const (
	KindDownload  ErrorKind = "DownloadError"
	KindSubmit    ErrorKind = "SubmitError"
	KindAnalysis  ErrorKind = "AnalysisError"
	KindUpload    ErrorKind = "UploadError"
	KindCancelled ErrorKind = "Cancelled"
)

// ErrCancelled marks a job stopped at a step boundary because the run was cancelled.
var ErrCancelled = errors.New("job cancelled")

// StepError is the per-item failure carried in a JobResult.
type StepError struct {
	Kind     ErrorKind
	Identity string
	Err      error
}

func (e *StepError) Error() string {
	msg := string(e.Kind) + " " + e.Identity
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// DiscoveryError is fatal to a batch: the source or destination could not be listed.
type DiscoveryError struct {
	Op  string
	Err error
}

func (e *DiscoveryError) Error() string {
	if e.Err == nil {
		return "discovery " + e.Op
	}
	return "discovery " + e.Op + ": " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConfigurationWarning records a value that was replaced by a safe default.
type ConfigurationWarning struct {
	Option   string
	Value    string
	Replaced string
}

func (w ConfigurationWarning) String() string {
	return w.Option + "=" + w.Value + " is out of range, using " + w.Replaced
}

// KindOf returns the ErrorKind of err, or "" when err is not a StepError.
func KindOf(err error) ErrorKind {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}
	return ""
}

// IsTransient reports whether a collaborator error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, analysis.ErrServiceUnavailable), errors.Is(err, analysis.ErrRateLimited):
		return true
	case errors.Is(err, analysis.ErrInvalidDocument),
		errors.Is(err, analysis.ErrAccessDenied),
		errors.Is(err, analysis.ErrOperationFailed),
		errors.Is(err, object.ErrAccessDenied),
		errors.Is(err, object.ErrNotFound),
		errors.Is(err, object.ErrQuotaExceeded),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "unexpected eof") {
		return true
	}
	return false
}
