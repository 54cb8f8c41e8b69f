package batch

import (
	"fmt"
	"time"

	"docintel-batch/internal/analysis"
)

// WorkItem is one discovered source document.
type WorkItem struct {
	Identity  string
	SizeBytes int64
}

// ExistingOutputSet holds the destination names present before a run starts.
type ExistingOutputSet map[string]struct{}

// NewExistingOutputSet builds a set from listed destination names.
func NewExistingOutputSet(names ...string) ExistingOutputSet {
	set := make(ExistingOutputSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s ExistingOutputSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// JobPhase is the lifecycle state of one job.
type JobPhase string

const (
	PhasePending     JobPhase = "pending"
	PhaseDownloading JobPhase = "downloading"
	PhaseSubmitted   JobPhase = "submitted"
	PhasePolling     JobPhase = "polling"
	PhaseUploading   JobPhase = "uploading"
	PhaseSucceeded   JobPhase = "succeeded"
	PhaseFailed      JobPhase = "failed"
)

var allowedTransitions = map[JobPhase]map[JobPhase]bool{
	PhasePending: {
		PhaseDownloading: true,
		PhaseFailed:      true,
	},
	PhaseDownloading: {
		PhaseSubmitted: true,
		PhaseFailed:    true,
	},
	PhaseSubmitted: {
		PhasePolling: true,
		PhaseFailed:  true,
	},
	PhasePolling: {
		PhasePolling:   true,
		PhaseUploading: true,
		PhaseFailed:    true,
	},
	PhaseUploading: {
		PhaseSucceeded: true,
		PhaseFailed:    true,
	},
}

// CanTransition reports whether a job may move from one phase to another.
func CanTransition(from, to JobPhase) bool {
	return allowedTransitions[from][to]
}

func (p JobPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// JobState is the mutable state of a single in-flight job. It is owned by the job's
// goroutine and discarded after the terminal report.
type JobState struct {
	Identity        string
	Phase           JobPhase
	StartedAt       time.Time
	FinishedAt      time.Time
	BytesDownloaded int64
	Pages           int
	OperationHandle analysis.OperationHandle
	Polls           int
	LastError       error
}

func (s *JobState) transition(to JobPhase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("invalid job phase transition: %q -> %q (identity=%s)", s.Phase, to, s.Identity)
	}
	s.Phase = to
	return nil
}

// JobStatus is the terminal status reported for a job.
type JobStatus string

const (
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// JobResult is the terminal report of one job.
type JobResult struct {
	RunID           string
	Identity        string
	OutputIdentity  string
	Status          JobStatus
	Err             error
	Kind            ErrorKind
	Duration        time.Duration
	BytesDownloaded int64
	Pages           int
	Polls           int
	FinishedAt      time.Time
}

// Cancelled reports whether the job was stopped by cancellation.
func (r JobResult) Cancelled() bool {
	return r.Kind == KindCancelled
}

// BatchOutcome is the final report of a run.
//
// For an uncancelled run Succeeded+Failed == Attempted and Attempted+Skipped == Discovered.
// When the run is cancelled, items that never started are counted in NotStarted instead.
type BatchOutcome struct {
	RunID          string
	StartedAt      time.Time
	Discovered     int
	Skipped        int
	Attempted      int
	Succeeded      int
	Failed         int
	Cancelled      int
	NotStarted     int
	PeakActive     int
	TotalElapsed   time.Duration
	PerFileElapsed []time.Duration
	Results        []JobResult
	SkippedItems   []string
	Warnings       []string
	Interrupted    bool
}

// AverageElapsed is the mean per-file duration, or zero when nothing was attempted.
func (o BatchOutcome) AverageElapsed() time.Duration {
	if len(o.PerFileElapsed) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range o.PerFileElapsed {
		total += d
	}
	return total / time.Duration(len(o.PerFileElapsed))
}

// Failures returns the failed results in completion order.
func (o BatchOutcome) Failures() []JobResult {
	var out []JobResult
	for _, r := range o.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
