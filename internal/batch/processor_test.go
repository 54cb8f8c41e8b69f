package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docintel-batch/internal/analysis"
	"docintel-batch/internal/shared/storage/object"
)

func TestProcessBatchSkipsExistingOutputs(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.pdf")
	dest := newMemStore("b_searchable.pdf")
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Discovered != 3 || outcome.Skipped != 1 || outcome.Succeeded != 2 || outcome.Failed != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Attempted+outcome.Skipped != outcome.Discovered {
		t.Fatalf("attempted+skipped != discovered: %+v", outcome)
	}
	for _, key := range []string{"a_searchable.pdf", "c_searchable.pdf"} {
		data, ok := dest.get(key)
		if !ok {
			t.Fatalf("expected %s in destination", key)
		}
		if !strings.HasPrefix(string(data), "searchable:") {
			t.Fatalf("unexpected output for %s: %q", key, data)
		}
	}
	if analyzer.submitCount("b.pdf") != 0 {
		t.Fatalf("skipped document was submitted")
	}
	if len(outcome.SkippedItems) != 1 || outcome.SkippedItems[0] != "b.pdf" {
		t.Fatalf("unexpected skipped items: %v", outcome.SkippedItems)
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	tests := []struct {
		name           string
		keys           []string
		maxConcurrency int
		setup          func(source *memStore, analyzer *fakeAnalyzer)
		failed         string
		kind           ErrorKind
		cause          error
		succeeded      int
	}{
		{
			name:           "invalid document at submit",
			keys:           []string{"a.pdf", "b.pdf"},
			maxConcurrency: 2,
			setup: func(source *memStore, analyzer *fakeAnalyzer) {
				analyzer.submitErrs["b.pdf"] = []error{analysis.ErrInvalidDocument}
			},
			failed:    "b.pdf",
			kind:      KindSubmit,
			cause:     analysis.ErrInvalidDocument,
			succeeded: 1,
		},
		{
			name:           "second of four fails submit",
			keys:           []string{"doc-1.pdf", "doc-2.pdf", "doc-3.pdf", "doc-4.pdf"},
			maxConcurrency: 3,
			setup: func(source *memStore, analyzer *fakeAnalyzer) {
				analyzer.submitErrs["doc-2.pdf"] = []error{analysis.ErrInvalidDocument}
			},
			failed:    "doc-2.pdf",
			kind:      KindSubmit,
			cause:     analysis.ErrInvalidDocument,
			succeeded: 3,
		},
		{
			name:           "download fails next to siblings",
			keys:           []string{"a.pdf", "b.pdf", "c.pdf"},
			maxConcurrency: 3,
			setup: func(source *memStore, analyzer *fakeAnalyzer) {
				source.openErrs["b.pdf"] = object.ErrNotFound
			},
			failed:    "b.pdf",
			kind:      KindDownload,
			cause:     object.ErrNotFound,
			succeeded: 2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := newMemStore(tt.keys...)
			dest := newMemStore()
			analyzer := newFakeAnalyzer()
			tt.setup(source, analyzer)
			opts := testOptions()
			opts.MaxConcurrency = tt.maxConcurrency
			p, _ := newTestProcessor(source, dest, analyzer, opts)

			outcome, err := p.ProcessBatch(context.Background())
			if err != nil {
				t.Fatalf("process batch: %v", err)
			}
			if outcome.Succeeded != tt.succeeded || outcome.Failed != 1 || outcome.Attempted != len(tt.keys) {
				t.Fatalf("expected %d succeeded and 1 failed, got %+v", tt.succeeded, outcome)
			}
			failures := outcome.Failures()
			if len(failures) != 1 || failures[0].Identity != tt.failed {
				t.Fatalf("unexpected failures: %+v", failures)
			}
			if failures[0].Kind != tt.kind || !errors.Is(failures[0].Err, tt.cause) {
				t.Fatalf("expected %s caused by %v, got %s %v", tt.kind, tt.cause, failures[0].Kind, failures[0].Err)
			}
			if tt.kind == KindSubmit {
				if got := analyzer.submitCount(tt.failed); got != 1 {
					t.Fatalf("invalid document must not be retried, got %d submits", got)
				}
			}
			for _, key := range tt.keys {
				if key == tt.failed {
					continue
				}
				if _, ok := dest.get(OutputName(key, DefaultOutputSuffix)); !ok {
					t.Fatalf("sibling output for %s missing", key)
				}
			}
			if _, ok := dest.get(OutputName(tt.failed, DefaultOutputSuffix)); ok {
				t.Fatalf("failed document produced an output")
			}
		})
	}
}

func TestProcessBatchFiveDiscoveredOneSkipped(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf")
	dest := newMemStore("c_searchable.pdf")
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Discovered != 5 || outcome.Skipped != 1 || outcome.Attempted != 4 || outcome.Succeeded != 4 || outcome.Failed != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if analyzer.submitCount("c.pdf") != 0 {
		t.Fatalf("skipped document was submitted")
	}
	if got := dest.saveCount("c_searchable.pdf"); got != 0 {
		t.Fatalf("existing output was overwritten %d times", got)
	}
}

func TestRunBatchClampsConcurrency(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.pdf")
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	analyzer.submitDelay = 2 * time.Millisecond
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	items := []WorkItem{{Identity: "a.pdf"}, {Identity: "b.pdf"}, {Identity: "c.pdf"}}
	outcome := p.RunBatch(context.Background(), items, 0)

	if outcome.Succeeded != 3 {
		t.Fatalf("expected 3 succeeded, got %+v", outcome)
	}
	if outcome.PeakActive != 1 || analyzer.peak != 1 {
		t.Fatalf("expected sequential execution, peak active=%d submits=%d", outcome.PeakActive, analyzer.peak)
	}
	if len(outcome.Warnings) != 1 || !strings.Contains(outcome.Warnings[0], "maxConcurrency") {
		t.Fatalf("expected a maxConcurrency warning, got %v", outcome.Warnings)
	}
}

func TestPollWaitsIntervalBetweenPolls(t *testing.T) {
	source := newMemStore("a.pdf")
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	analyzer.pollScripts["a.pdf"] = []analysis.PollResult{
		{Status: analysis.StatusNotStarted},
		{Status: analysis.StatusRunning},
		{Status: analysis.StatusRunning},
		{Status: analysis.StatusCompleted, Result: []byte("searchable:a.pdf")},
	}
	opts := testOptions()
	opts.PollInterval = 7 * time.Second
	p, waits := newTestProcessor(source, dest, analyzer, opts)
	observer := newCountingObserver()
	p.Observers = []Observer{observer}

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Succeeded != 1 {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if got := analyzer.pollCount("a.pdf"); got != 4 {
		t.Fatalf("expected 4 polls, got %d", got)
	}
	recorded := waits.all()
	if len(recorded) != 4 {
		t.Fatalf("expected 4 waits, got %v", recorded)
	}
	for _, d := range recorded {
		if d != 7*time.Second {
			t.Fatalf("expected poll interval 7s, got %v", d)
		}
	}
	if outcome.Results[0].Polls != 4 {
		t.Fatalf("expected 4 polls on result, got %d", outcome.Results[0].Polls)
	}

	want := []JobPhase{PhaseDownloading, PhaseSubmitted, PhasePolling, PhaseUploading, PhaseSucceeded}
	got := observer.transitions["a.pdf"]
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected transitions: %v", got)
	}
	if observer.starts != 1 || len(observer.terminals) != 1 {
		t.Fatalf("expected one start and one terminal event, got %d/%d", observer.starts, len(observer.terminals))
	}
}

func TestProcessBatchRerunSkipsEverything(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.PDF", "notes.txt")
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	first, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Discovered != 3 || first.Succeeded != 3 {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	second, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Skipped != second.Discovered || second.Attempted != 0 {
		t.Fatalf("expected everything skipped on rerun, got %+v", second)
	}
	if second.AverageElapsed() != 0 {
		t.Fatalf("expected zero average when nothing attempted, got %v", second.AverageElapsed())
	}
	if first.RunID == second.RunID {
		t.Fatalf("expected distinct run ids")
	}
}

func TestProcessBatchRerunWithSharedLocation(t *testing.T) {
	store := newMemStore("a.pdf", "b.pdf")
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(store, store, analyzer, testOptions())

	first, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Discovered != 2 || first.Succeeded != 2 {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	for run := 2; run <= 3; run++ {
		outcome, err := p.ProcessBatch(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if outcome.Discovered != 4 || outcome.Skipped != outcome.Discovered || outcome.Attempted != 0 {
			t.Fatalf("run %d: expected everything skipped, got %+v", run, outcome)
		}
	}
	for _, key := range []string{"a_searchable_searchable.pdf", "b_searchable_searchable.pdf"} {
		if _, ok := store.get(key); ok {
			t.Fatalf("output %s was reprocessed", key)
		}
	}
	if analyzer.submitCount("a_searchable.pdf") != 0 {
		t.Fatalf("derived output was submitted")
	}
}

func TestRunBatchRespectsConcurrencyCeiling(t *testing.T) {
	var keys []string
	var items []WorkItem
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("doc-%02d.pdf", i)
		keys = append(keys, key)
		items = append(items, WorkItem{Identity: key})
	}
	source := newMemStore(keys...)
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	analyzer.submitDelay = 3 * time.Millisecond
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	outcome := p.RunBatch(context.Background(), items, 3)
	if outcome.Succeeded != 12 {
		t.Fatalf("expected all succeeded, got %+v", outcome)
	}
	if outcome.PeakActive > 3 || analyzer.peak > 3 {
		t.Fatalf("concurrency ceiling exceeded: peak active=%d submits=%d", outcome.PeakActive, analyzer.peak)
	}
	if len(outcome.PerFileElapsed) != 12 {
		t.Fatalf("expected 12 per-file durations, got %d", len(outcome.PerFileElapsed))
	}
	if len(outcome.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", outcome.Warnings)
	}
}

// slowObserver blocks in OnTerminal until release is closed.
type slowObserver struct {
	entered chan string
	release chan struct{}
}

func (o *slowObserver) OnStart(identity string) {}

func (o *slowObserver) OnTransition(identity string, from, to JobPhase) {}

func (o *slowObserver) OnTerminal(result JobResult) {
	o.entered <- result.Identity
	<-o.release
}

func TestSlowObserverDoesNotHoldSlot(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.pdf")
	opts := testOptions()
	opts.MaxConcurrency = 1
	p, _ := newTestProcessor(source, newMemStore(), newFakeAnalyzer(), opts)
	observer := &slowObserver{entered: make(chan string, 3), release: make(chan struct{})}
	p.Observers = []Observer{observer}
	var once sync.Once
	release := func() { once.Do(func() { close(observer.release) }) }
	defer release()

	done := make(chan BatchOutcome, 1)
	go func() {
		outcome, _ := p.ProcessBatch(context.Background())
		done <- outcome
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-observer.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d did not finish while earlier notifications were pending", i+1)
		}
	}
	release()

	select {
	case outcome := <-done:
		if outcome.Succeeded != 3 || outcome.PeakActive != 1 {
			t.Fatalf("unexpected outcome: %+v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("batch did not finish after notifications were released")
	}
}

func TestRetryTransientSubmitFailure(t *testing.T) {
	source := newMemStore("a.pdf")
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	analyzer.submitErrs["a.pdf"] = []error{
		analysis.NewServiceError("submit", 503, "", "busy", analysis.ErrServiceUnavailable, 0),
		analysis.NewServiceError("submit", 429, "", "slow down", analysis.ErrRateLimited, 5*time.Second),
	}
	opts := testOptions()
	p, waits := newTestProcessor(source, dest, analyzer, opts)

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Succeeded != 1 {
		t.Fatalf("expected success after retries, got %+v", outcome.Results)
	}
	if got := analyzer.submitCount("a.pdf"); got != 3 {
		t.Fatalf("expected 3 submits, got %d", got)
	}
	recorded := waits.all()
	if len(recorded) < 2 || recorded[0] != time.Second || recorded[1] != 5*time.Second {
		t.Fatalf("expected backoff 1s then retry-after 5s, got %v", recorded)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	source := newMemStore("a.pdf")
	dest := newMemStore()
	analyzer := newFakeAnalyzer()
	busy := analysis.NewServiceError("poll", 500, "", "", analysis.ErrServiceUnavailable, 0)
	analyzer.pollErrs["a.pdf"] = []error{busy, busy, busy, busy}
	p, _ := newTestProcessor(source, dest, analyzer, testOptions())

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Failed != 1 {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	result := outcome.Results[0]
	if result.Kind != KindAnalysis || !errors.Is(result.Err, analysis.ErrServiceUnavailable) {
		t.Fatalf("unexpected failure: %s %v", result.Kind, result.Err)
	}
	if got := analyzer.pollCount("a.pdf"); got != 3 {
		t.Fatalf("expected 1 call plus 2 retries, got %d", got)
	}
}

func TestStepFailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(source, dest *memStore, analyzer *fakeAnalyzer)
		kind    ErrorKind
		cause   error
		uploads int
	}{
		{
			name: "download not found",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				source.openErrs["a.pdf"] = object.ErrNotFound
			},
			kind:  KindDownload,
			cause: object.ErrNotFound,
		},
		{
			name: "submit access denied",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				analyzer.submitErrs["a.pdf"] = []error{analysis.ErrAccessDenied}
			},
			kind:  KindSubmit,
			cause: analysis.ErrAccessDenied,
		},
		{
			name: "operation failed",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				analyzer.pollScripts["a.pdf"] = []analysis.PollResult{
					{Status: analysis.StatusRunning},
					{Status: analysis.StatusFailed, Err: errors.New("InvalidContent: corrupted file")},
				}
			},
			kind:  KindAnalysis,
			cause: analysis.ErrOperationFailed,
		},
		{
			name: "completed without result",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				analyzer.pollScripts["a.pdf"] = []analysis.PollResult{{Status: analysis.StatusCompleted}}
			},
			kind:  KindAnalysis,
			cause: analysis.ErrOperationFailed,
		},
		{
			name: "unknown operation status",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				analyzer.pollScripts["a.pdf"] = []analysis.PollResult{{Status: analysis.Status("canceled")}}
			},
			kind:  KindAnalysis,
			cause: analysis.ErrOperationFailed,
		},
		{
			name: "upload quota",
			setup: func(source, dest *memStore, analyzer *fakeAnalyzer) {
				dest.saveErrs["a_searchable.pdf"] = []error{object.ErrQuotaExceeded}
			},
			kind:    KindUpload,
			cause:   object.ErrQuotaExceeded,
			uploads: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := newMemStore("a.pdf")
			dest := newMemStore()
			analyzer := newFakeAnalyzer()
			tt.setup(source, dest, analyzer)
			p, _ := newTestProcessor(source, dest, analyzer, testOptions())

			outcome, err := p.ProcessBatch(context.Background())
			if err != nil {
				t.Fatalf("process batch: %v", err)
			}
			if outcome.Failed != 1 || len(outcome.Results) != 1 {
				t.Fatalf("expected one failure, got %+v", outcome)
			}
			result := outcome.Results[0]
			if result.Status != StatusFailed || result.Kind != tt.kind {
				t.Fatalf("expected %s, got %s (%v)", tt.kind, result.Kind, result.Err)
			}
			if !errors.Is(result.Err, tt.cause) {
				t.Fatalf("expected cause %v, got %v", tt.cause, result.Err)
			}
			if got := dest.saveCount("a_searchable.pdf"); got != tt.uploads {
				t.Fatalf("expected %d upload attempts, got %d", tt.uploads, got)
			}
		})
	}
}

func TestRetryUploadTransientFailure(t *testing.T) {
	source := newMemStore("a.pdf")
	dest := newMemStore()
	dest.saveErrs["a_searchable.pdf"] = []error{errors.New("write: connection reset by peer")}
	p, _ := newTestProcessor(source, dest, newFakeAnalyzer(), testOptions())

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Succeeded != 1 {
		t.Fatalf("expected success, got %+v", outcome.Results)
	}
	if got := dest.saveCount("a_searchable.pdf"); got != 2 {
		t.Fatalf("expected 2 upload attempts, got %d", got)
	}
}

func TestCancellationStopsNewJobs(t *testing.T) {
	source := newMemStore("a.pdf", "b.pdf", "c.pdf", "d.pdf")
	dest := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewProcessor(source, dest, newFakeAnalyzer(), testOptions())
	p.Options.MaxConcurrency = 1
	p.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	outcome, err := p.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !outcome.Interrupted {
		t.Fatalf("expected interrupted outcome")
	}
	if outcome.Attempted != 1 || outcome.Cancelled != 1 || outcome.NotStarted != 3 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	result := outcome.Results[0]
	if result.Kind != KindCancelled || !errors.Is(result.Err, ErrCancelled) || !result.Cancelled() {
		t.Fatalf("expected cancelled result, got %s %v", result.Kind, result.Err)
	}
	if outcome.Succeeded+outcome.Failed != outcome.Attempted {
		t.Fatalf("succeeded+failed != attempted: %+v", outcome)
	}
	if outcome.Attempted+outcome.Skipped+outcome.NotStarted != outcome.Discovered {
		t.Fatalf("cancelled run lost items: %+v", outcome)
	}
}

func TestProcessBatchDiscoveryFailure(t *testing.T) {
	source := newMemStore()
	source.listErr = object.ErrAccessDenied
	p, _ := newTestProcessor(source, newMemStore(), newFakeAnalyzer(), testOptions())

	_, err := p.ProcessBatch(context.Background())
	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
	if !errors.Is(err, object.ErrAccessDenied) {
		t.Fatalf("expected access denied cause, got %v", err)
	}
}

func TestProcessBatchDestinationAccessDenied(t *testing.T) {
	dest := newMemStore()
	dest.listErr = fmt.Errorf("list: %w", object.ErrAccessDenied)
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(newMemStore("a.pdf"), dest, analyzer, testOptions())

	_, err := p.ProcessBatch(context.Background())
	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
	if analyzer.submitCount("a.pdf") != 0 {
		t.Fatalf("no document should be submitted")
	}
}

func TestProcessBatchExistingOutputsUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		existsErr error
		attempted int
		skipped   int
	}{
		{name: "falls back to per-output lookups", attempted: 1, skipped: 1},
		{name: "lookups failing processes everything", existsErr: errors.New("timeout"), attempted: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dest := newMemStore("b_searchable.pdf")
			dest.listErr = object.ErrNotFound
			dest.existsErr = tt.existsErr
			p, _ := newTestProcessor(newMemStore("a.pdf", "b.pdf"), dest, newFakeAnalyzer(), testOptions())

			outcome, err := p.ProcessBatch(context.Background())
			if err != nil {
				t.Fatalf("process batch: %v", err)
			}
			if outcome.Skipped != tt.skipped || outcome.Attempted != tt.attempted {
				t.Fatalf("expected %d attempted and %d skipped, got %+v", tt.attempted, tt.skipped, outcome)
			}
			if dest.lookups != 2 {
				t.Fatalf("expected one lookup per document, got %d", dest.lookups)
			}
		})
	}
}

func TestProcessBatchListedDestinationSkipsLookups(t *testing.T) {
	dest := newMemStore("b_searchable.pdf")
	p, _ := newTestProcessor(newMemStore("a.pdf", "b.pdf"), dest, newFakeAnalyzer(), testOptions())

	if _, err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if dest.lookups != 0 {
		t.Fatalf("expected the listing to be used instead of lookups, got %d", dest.lookups)
	}
}

func TestProcessBatchNothingDiscovered(t *testing.T) {
	p, _ := newTestProcessor(newMemStore("readme.txt"), newMemStore(), newFakeAnalyzer(), testOptions())

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if outcome.Discovered != 0 || outcome.Attempted != 0 || len(outcome.Results) != 0 {
		t.Fatalf("expected empty outcome, got %+v", outcome)
	}
	progress, ok := p.Progress()
	if !ok || !progress.Done {
		t.Fatalf("expected finished progress snapshot, got %+v ok=%v", progress, ok)
	}
}

func TestRejectUnreadablePDF(t *testing.T) {
	opts := testOptions()
	opts.RejectUnreadablePDF = true
	analyzer := newFakeAnalyzer()
	p, _ := newTestProcessor(newMemStore("a.pdf"), newMemStore(), analyzer, opts)

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	result := outcome.Results[0]
	if result.Kind != KindDownload || !errors.Is(result.Err, analysis.ErrInvalidDocument) {
		t.Fatalf("expected download rejection, got %s %v", result.Kind, result.Err)
	}
	if analyzer.submitCount("a.pdf") != 0 {
		t.Fatalf("rejected document must not be submitted")
	}
}

type recordingRuns struct {
	outcomes []BatchOutcome
}

func (r *recordingRuns) RecordRun(ctx context.Context, outcome BatchOutcome) error {
	_ = ctx
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func TestProcessBatchRecordsRun(t *testing.T) {
	runs := &recordingRuns{}
	p, _ := newTestProcessor(newMemStore("a.pdf"), newMemStore(), newFakeAnalyzer(), testOptions())
	p.Runs = runs
	p.newRunID = func() string { return "run-1" }

	outcome, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(runs.outcomes) != 1 || runs.outcomes[0].RunID != "run-1" || outcome.RunID != "run-1" {
		t.Fatalf("expected recorded run-1, got %+v", runs.outcomes)
	}
	if outcome.Results[0].RunID != "run-1" {
		t.Fatalf("expected result to carry run id")
	}
}
