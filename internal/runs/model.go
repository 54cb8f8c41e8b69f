package runs

import (
	"time"

	"docintel-batch/internal/batch"
)

// Failure is one failed document of a run.
type Failure struct {
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// Run is the persisted summary of one batch.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Discovered  int       `json:"discovered"`
	Skipped     int       `json:"skipped"`
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Cancelled   int       `json:"cancelled"`
	NotStarted  int       `json:"notStarted"`
	Interrupted bool      `json:"interrupted"`
	Failures    []Failure `json:"failures"`
}

// FromOutcome converts a finished batch into a Run.
func FromOutcome(o batch.BatchOutcome) Run {
	run := Run{
		ID:          o.RunID,
		StartedAt:   o.StartedAt.UTC(),
		FinishedAt:  o.StartedAt.Add(o.TotalElapsed).UTC(),
		Discovered:  o.Discovered,
		Skipped:     o.Skipped,
		Attempted:   o.Attempted,
		Succeeded:   o.Succeeded,
		Failed:      o.Failed,
		Cancelled:   o.Cancelled,
		NotStarted:  o.NotStarted,
		Interrupted: o.Interrupted,
		Failures:    []Failure{},
	}
	for _, r := range o.Failures() {
		f := Failure{Identity: r.Identity, Kind: string(r.Kind)}
		if r.Err != nil {
			f.Error = r.Err.Error()
		}
		run.Failures = append(run.Failures, f)
	}
	return run
}
