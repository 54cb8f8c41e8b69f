package batch

import (
	"fmt"
	"sync"
	"time"

	"docintel-batch/internal/shared/telemetry"
	"docintel-batch/internal/shared/util"
)

// Progress is a point-in-time view of a running batch.
type Progress struct {
	RunID      string           `json:"runId"`
	Discovered int              `json:"discovered"`
	Skipped    int              `json:"skipped"`
	Planned    int              `json:"planned"`
	Attempted  int              `json:"attempted"`
	Completed  int              `json:"completed"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Active     int              `json:"active"`
	Phases     map[JobPhase]int `json:"phases"`
	// Percent is 100*Completed/max(Planned, Attempted) while the run is active and
	// 100*Completed/Attempted once it is Done, so items a cancellation left unstarted
	// drop out of the final figure.
	Percent   float64 `json:"percent"`
	ElapsedMs int64   `json:"elapsedMs"`
	Done      bool    `json:"done"`
}

// Line renders the human progress line logged after each terminal event.
func (p Progress) Line() string {
	return fmt.Sprintf("%d/%d (%.1f%%) - %d completed | %d failed - %s",
		p.Completed, p.Planned, p.Percent, p.Succeeded, p.Failed,
		util.FormatDuration(time.Duration(p.ElapsedMs)*time.Millisecond))
}

// Aggregator collects job events into run totals. It is safe for concurrent use; its
// counters are the only state shared between jobs.
type Aggregator struct {
	mu  sync.Mutex
	now func() time.Time

	runID      string
	startedAt  time.Time
	finishedAt time.Time
	discovered int
	skipped    int
	planned    int

	attempted  int
	succeeded  int
	failed     int
	cancelled  int
	notStarted int
	active     int
	peakActive int
	phases     map[string]JobPhase

	perFile      []time.Duration
	results      []JobResult
	skippedItems []string
	warnings     []string
	interrupted  bool
	done         bool
}

// NewAggregator starts the elapsed clock for a run that plans to attempt planned items.
func NewAggregator(runID string, discovered int, skipped []WorkItem, planned int) *Aggregator {
	return newAggregator(runID, discovered, skipped, planned, time.Now)
}

func newAggregator(runID string, discovered int, skipped []WorkItem, planned int, now func() time.Time) *Aggregator {
	a := &Aggregator{
		now:        now,
		runID:      runID,
		startedAt:  now(),
		discovered: discovered,
		skipped:    len(skipped),
		planned:    planned,
		phases:     map[string]JobPhase{},
	}
	for _, item := range skipped {
		a.skippedItems = append(a.skippedItems, item.Identity)
	}
	return a
}

// OnStart records that a job has begun.
func (a *Aggregator) OnStart(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempted++
	a.active++
	if a.active > a.peakActive {
		a.peakActive = a.active
	}
	a.phases[identity] = PhasePending
}

// OnTransition records the phase of an in-flight job.
func (a *Aggregator) OnTransition(identity string, _ JobPhase, to JobPhase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.phases[identity]; ok {
		a.phases[identity] = to
	}
}

// OnTerminal records a finished job and logs the running progress line.
func (a *Aggregator) OnTerminal(result JobResult) {
	a.mu.Lock()
	a.active--
	delete(a.phases, result.Identity)
	switch result.Status {
	case StatusSucceeded:
		a.succeeded++
	default:
		a.failed++
		if result.Cancelled() {
			a.cancelled++
		}
	}
	a.perFile = append(a.perFile, result.Duration)
	a.results = append(a.results, result)
	snap := a.snapshotLocked()
	a.mu.Unlock()

	telemetry.Info("batch.progress", map[string]any{
		"runId":     snap.RunID,
		"line":      snap.Line(),
		"completed": snap.Completed,
		"planned":   snap.Planned,
		"percent":   snap.Percent,
	})
}

// Warn attaches a configuration warning to the outcome.
func (a *Aggregator) Warn(w string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, w)
}

// MarkInterrupted records that cancellation stopped the run with n items never started.
func (a *Aggregator) MarkInterrupted(notStarted int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interrupted = true
	a.notStarted += notStarted
}

// Finish stops the elapsed clock.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.done {
		a.done = true
		a.finishedAt = a.now()
	}
}

// Snapshot returns the current progress.
func (a *Aggregator) Snapshot() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Progress {
	completed := a.succeeded + a.failed
	p := Progress{
		RunID:      a.runID,
		Discovered: a.discovered,
		Skipped:    a.skipped,
		Planned:    a.planned,
		Attempted:  a.attempted,
		Completed:  completed,
		Succeeded:  a.succeeded,
		Failed:     a.failed,
		Active:     a.active,
		Phases:     map[JobPhase]int{},
		ElapsedMs:  a.elapsedLocked().Milliseconds(),
		Done:       a.done,
	}
	for _, phase := range a.phases {
		p.Phases[phase]++
	}
	if denom := a.percentBase(); denom > 0 {
		p.Percent = float64(completed) / float64(denom) * 100
	}
	return p
}

// percentBase is the attempted count once the run is over and the planned count while
// jobs are still being started.
func (a *Aggregator) percentBase() int {
	if a.done {
		return a.attempted
	}
	if a.planned > a.attempted {
		return a.planned
	}
	return a.attempted
}

func (a *Aggregator) elapsedLocked() time.Duration {
	end := a.finishedAt
	if !a.done {
		end = a.now()
	}
	return end.Sub(a.startedAt)
}

// Summary returns the outcome accumulated so far.
func (a *Aggregator) Summary() BatchOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return BatchOutcome{
		RunID:          a.runID,
		StartedAt:      a.startedAt,
		Discovered:     a.discovered,
		Skipped:        a.skipped,
		Attempted:      a.attempted,
		Succeeded:      a.succeeded,
		Failed:         a.failed,
		Cancelled:      a.cancelled,
		NotStarted:     a.notStarted,
		PeakActive:     a.peakActive,
		TotalElapsed:   a.elapsedLocked(),
		PerFileElapsed: append([]time.Duration(nil), a.perFile...),
		Results:        append([]JobResult(nil), a.results...),
		SkippedItems:   append([]string(nil), a.skippedItems...),
		Warnings:       append([]string(nil), a.warnings...),
		Interrupted:    a.interrupted,
	}
}
