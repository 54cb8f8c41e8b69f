package runs

import (
	"context"
	"errors"

	"docintel-batch/internal/batch"
)

// ErrNotFound indicates the run does not exist.
var ErrNotFound = errors.New("run not found")

// Repo defines persistence operations for batch runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, id string) (Run, error)
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}

// Recorder stores every finished batch in a Repo.
type Recorder struct {
	Repo Repo
}

func (r Recorder) RecordRun(ctx context.Context, outcome batch.BatchOutcome) error {
	return r.Repo.Create(ctx, FromOutcome(outcome))
}

var _ batch.RunRecorder = Recorder{}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
