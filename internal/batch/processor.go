package batch

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"docintel-batch/internal/analysis"
	"docintel-batch/internal/shared/metrics"
	"docintel-batch/internal/shared/telemetry"
	"docintel-batch/internal/shared/util"
)

const (
	DefaultMaxConcurrency   = 5
	DefaultPollInterval     = 5 * time.Second
	DefaultOutputSuffix     = "_searchable"
	DefaultMaxDocumentBytes = 500 << 20
)

// SourceStore is where documents are discovered and downloaded from.
type SourceStore interface {
	Lister
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DestinationStore receives the searchable outputs.
type DestinationStore interface {
	Lister
	Exists(ctx context.Context, key string) (bool, error)
	SaveWithKey(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
}

// RunRecorder persists the outcome of a finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, outcome BatchOutcome) error
}

// Options tunes a Processor. Out-of-range values are replaced with defaults and
// reported as ConfigurationWarnings.
type Options struct {
	MaxConcurrency      int
	PollInterval        time.Duration
	Retry               RetryPolicy
	OutputSuffix        string
	MaxDocumentBytes    int64
	RejectUnreadablePDF bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:   DefaultMaxConcurrency,
		PollInterval:     DefaultPollInterval,
		Retry:            DefaultRetryPolicy(),
		OutputSuffix:     DefaultOutputSuffix,
		MaxDocumentBytes: DefaultMaxDocumentBytes,
	}
}

func (o Options) normalize() (Options, []ConfigurationWarning) {
	var warnings []ConfigurationWarning
	if o.MaxConcurrency < 1 {
		warnings = append(warnings, ConfigurationWarning{Option: "maxConcurrency", Value: strconv.Itoa(o.MaxConcurrency), Replaced: "1"})
		o.MaxConcurrency = 1
	}
	if o.PollInterval <= 0 {
		warnings = append(warnings, ConfigurationWarning{Option: "pollInterval", Value: o.PollInterval.String(), Replaced: DefaultPollInterval.String()})
		o.PollInterval = DefaultPollInterval
	}
	if o.Retry.Attempts < 0 {
		warnings = append(warnings, ConfigurationWarning{Option: "retryAttempts", Value: strconv.Itoa(o.Retry.Attempts), Replaced: "0"})
		o.Retry.Attempts = 0
	}
	if o.Retry.BaseDelay < 0 {
		warnings = append(warnings, ConfigurationWarning{Option: "retryBaseDelay", Value: o.Retry.BaseDelay.String(), Replaced: "0s"})
		o.Retry.BaseDelay = 0
	}
	if o.OutputSuffix == "" {
		o.OutputSuffix = DefaultOutputSuffix
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	return o, warnings
}

// Processor orchestrates one batch: discovery, skip filtering, scheduling and reporting.
type Processor struct {
	Source    SourceStore
	Dest      DestinationStore
	Analyzer  analysis.Client
	Options   Options
	Observers []Observer
	Runs      RunRecorder

	wait     waitFunc
	now      func() time.Time
	newRunID func() string
	current  atomic.Pointer[Aggregator]
}

// NewProcessor wires a Processor with the given collaborators.
func NewProcessor(source SourceStore, dest DestinationStore, analyzer analysis.Client, opts Options) *Processor {
	return &Processor{Source: source, Dest: dest, Analyzer: analyzer, Options: opts}
}

var errMissingCollaborator = errors.New("processor requires a source, a destination and an analyzer")

// ProcessBatch runs one full batch. It returns an error only for fatal problems
// (discovery or readiness failures); per-document failures are reported in the outcome.
// A cancelled ctx stops new jobs from starting and the outcome is marked Interrupted.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchOutcome, error) {
	if p.Source == nil || p.Dest == nil || p.Analyzer == nil {
		return BatchOutcome{}, errMissingCollaborator
	}
	runID := p.runID()
	opts, warnings := p.Options.normalize()

	existing, err := LoadExistingOutputs(ctx, p.Dest)
	listed := err == nil
	if err != nil {
		var discErr *DiscoveryError
		if errors.As(err, &discErr) {
			telemetry.Error("batch.destination.unavailable", map[string]any{"runId": runID, "error": err})
			return BatchOutcome{RunID: runID}, err
		}
		telemetry.Warn("batch.existing_outputs.unavailable", map[string]any{
			"runId": runID,
			"error": err,
		})
	}

	items, err := Discover(ctx, p.Source)
	if err != nil {
		telemetry.Error("batch.discovery.failed", map[string]any{"runId": runID, "error": err})
		return BatchOutcome{RunID: runID}, err
	}

	var toProcess, skipped []WorkItem
	if listed {
		toProcess, skipped = Filter(items, existing, opts.OutputSuffix)
	} else {
		toProcess, skipped = FilterByLookup(ctx, p.Dest, items, opts.OutputSuffix)
	}
	metrics.AddDocumentsSkipped(len(skipped))
	for _, item := range skipped {
		telemetry.Info("batch.skip", map[string]any{
			"runId":    runID,
			"identity": item.Identity,
			"output":   OutputName(item.Identity, opts.OutputSuffix),
		})
	}

	agg := newAggregator(runID, len(items), skipped, len(toProcess), p.clock())
	reportWarnings(agg, warnings)
	p.current.Store(agg)

	switch {
	case len(items) == 0:
		telemetry.Info("batch.nothing_discovered", map[string]any{"runId": runID})
	case len(toProcess) == 0:
		telemetry.Info("batch.all_skipped", map[string]any{"runId": runID, "skipped": len(skipped)})
	default:
		telemetry.Info("batch.start", map[string]any{
			"runId":          runID,
			"discovered":     len(items),
			"skipped":        len(skipped),
			"toProcess":      len(toProcess),
			"maxConcurrency": opts.MaxConcurrency,
		})
		p.runBatch(ctx, toProcess, opts, agg)
	}
	agg.Finish()

	outcome := agg.Summary()
	logSummary(outcome)
	if p.Runs != nil {
		if err := p.Runs.RecordRun(context.WithoutCancel(ctx), outcome); err != nil {
			telemetry.Warn("batch.run.record_failed", map[string]any{"runId": runID, "error": err})
		}
	}
	return outcome, nil
}

// Progress returns a snapshot of the most recent run, if any has started.
func (p *Processor) Progress() (Progress, bool) {
	agg := p.current.Load()
	if agg == nil {
		return Progress{}, false
	}
	return agg.Snapshot(), true
}

func (p *Processor) runID() string {
	if p.newRunID != nil {
		return p.newRunID()
	}
	return uuid.NewString()
}

func (p *Processor) clock() func() time.Time {
	if p.now != nil {
		return p.now
	}
	return time.Now
}

func (p *Processor) waitFn() waitFunc {
	if p.wait != nil {
		return p.wait
	}
	return sleepContext
}

func reportWarnings(agg *Aggregator, warnings []ConfigurationWarning) {
	for _, w := range warnings {
		telemetry.Warn("batch.config.warning", map[string]any{
			"option":   w.Option,
			"value":    w.Value,
			"replaced": w.Replaced,
		})
		agg.Warn(w.String())
	}
}

func logSummary(o BatchOutcome) {
	fields := map[string]any{
		"runId":      o.RunID,
		"discovered": o.Discovered,
		"skipped":    o.Skipped,
		"attempted":  o.Attempted,
		"succeeded":  o.Succeeded,
		"failed":     o.Failed,
		"elapsed":    util.FormatDuration(o.TotalElapsed),
		"avgPerFile": util.FormatDuration(o.AverageElapsed()),
	}
	if o.Interrupted {
		fields["cancelled"] = o.Cancelled
		fields["notStarted"] = o.NotStarted
	}
	telemetry.Info("batch.summary", fields)
	for _, r := range o.Failures() {
		telemetry.Warn("batch.summary.failure", map[string]any{
			"runId":    o.RunID,
			"identity": r.Identity,
			"kind":     string(r.Kind),
			"error":    r.Err,
		})
	}
}
