package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"docintel-batch/internal/analysis"
	"docintel-batch/internal/pdfinspect"
	"docintel-batch/internal/shared/metrics"
	"docintel-batch/internal/shared/telemetry"
	"docintel-batch/internal/shared/util"
)

const outputContentType = "application/pdf"

// job drives one WorkItem through download, submit, poll and upload. Step I/O runs on a
// context detached from cancellation; cancellation is observed between steps and during
// waits.
type job struct {
	p         *Processor
	opts      Options
	runID     string
	item      WorkItem
	output    string
	state     JobState
	agg       *Aggregator
	observers []Observer
	wait      waitFunc
}

func (p *Processor) newJob(agg *Aggregator, item WorkItem, opts Options) *job {
	return &job{
		p:         p,
		opts:      opts,
		runID:     agg.runID,
		item:      item,
		output:    OutputName(item.Identity, opts.OutputSuffix),
		agg:       agg,
		observers: p.Observers,
		wait:      p.waitFn(),
	}
}

func (j *job) start() {
	j.state = JobState{Identity: j.item.Identity, Phase: PhasePending, StartedAt: j.p.clock()()}
	metrics.IncJobStarted()
	telemetry.Info("batch.job.start", map[string]any{
		"runId":    j.runID,
		"identity": j.item.Identity,
		"output":   j.output,
		"size":     util.FormatBytes(j.item.SizeBytes),
	})
	j.agg.OnStart(j.item.Identity)
	for _, o := range j.observers {
		o.OnStart(j.item.Identity)
	}
}

func (j *job) run(ctx context.Context) (result JobResult) {
	defer func() {
		if r := recover(); r != nil {
			result = j.fail(&StepError{Kind: kindForPhase(j.state.Phase), Identity: j.item.Identity, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	ioCtx := context.WithoutCancel(ctx)

	data, err := j.download(ctx, ioCtx)
	if err != nil {
		return j.fail(err)
	}
	handle, err := j.submit(ctx, ioCtx, data)
	if err != nil {
		return j.fail(err)
	}
	output, err := j.poll(ctx, ioCtx, handle)
	if err != nil {
		return j.fail(err)
	}
	if err := j.upload(ctx, ioCtx, output); err != nil {
		return j.fail(err)
	}
	return j.succeed()
}

func (j *job) download(ctx, ioCtx context.Context) ([]byte, error) {
	if err := j.enter(ctx, PhaseDownloading); err != nil {
		return nil, err
	}
	body, err := j.p.Source.Open(ioCtx, j.item.Identity)
	if err != nil {
		return nil, j.stepError(ctx, KindDownload, err)
	}
	defer body.Close()

	limit := j.opts.MaxDocumentBytes
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, j.stepError(ctx, KindDownload, fmt.Errorf("read: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, j.stepError(ctx, KindDownload, fmt.Errorf("%w: larger than %s", analysis.ErrInvalidDocument, util.FormatBytes(limit)))
	}
	j.state.BytesDownloaded = int64(len(data))

	info, err := pdfinspect.Inspect(data)
	switch {
	case err != nil && j.opts.RejectUnreadablePDF:
		return nil, j.stepError(ctx, KindDownload, fmt.Errorf("%w: %w", analysis.ErrInvalidDocument, err))
	case err != nil:
		telemetry.Warn("batch.job.inspect_failed", map[string]any{
			"runId":    j.runID,
			"identity": j.item.Identity,
			"error":    err,
		})
	default:
		j.state.Pages = info.Pages
		telemetry.Info("batch.job.downloaded", map[string]any{
			"runId":    j.runID,
			"identity": j.item.Identity,
			"bytes":    util.FormatBytes(j.state.BytesDownloaded),
			"pages":    info.Pages,
			"hasText":  info.HasText,
		})
	}
	return data, nil
}

func (j *job) submit(ctx, ioCtx context.Context, data []byte) (analysis.OperationHandle, error) {
	if err := j.enter(ctx, PhaseSubmitted); err != nil {
		return "", err
	}
	var handle analysis.OperationHandle
	err := j.opts.Retry.do(ctx, ioCtx, j.wait, "submit", j.item.Identity, func(c context.Context) error {
		h, err := j.p.Analyzer.Submit(c, data)
		handle = h
		return err
	})
	if err != nil {
		return "", j.stepError(ctx, KindSubmit, err)
	}
	j.state.OperationHandle = handle
	return handle, nil
}

// poll waits one interval before every poll until the operation reaches a terminal status.
func (j *job) poll(ctx, ioCtx context.Context, handle analysis.OperationHandle) ([]byte, error) {
	for {
		if err := j.wait(ctx, j.opts.PollInterval); err != nil {
			return nil, j.cancelled(err)
		}
		if err := j.enter(ctx, PhasePolling); err != nil {
			return nil, err
		}

		var res analysis.PollResult
		err := j.opts.Retry.do(ctx, ioCtx, j.wait, "poll", j.item.Identity, func(c context.Context) error {
			j.state.Polls++
			metrics.IncAnalysisPoll()
			r, err := j.p.Analyzer.Poll(c, handle)
			res = r
			return err
		})
		if err != nil {
			return nil, j.stepError(ctx, KindAnalysis, err)
		}

		if !res.Status.Terminal() {
			if res.Status != analysis.StatusNotStarted && res.Status != analysis.StatusRunning {
				return nil, j.stepError(ctx, KindAnalysis, fmt.Errorf("%w: unexpected operation status %q", analysis.ErrOperationFailed, res.Status))
			}
			continue
		}
		if res.Status == analysis.StatusFailed {
			cause := res.Err
			if cause == nil {
				cause = analysis.ErrOperationFailed
			} else if !errors.Is(cause, analysis.ErrOperationFailed) {
				cause = fmt.Errorf("%w: %w", analysis.ErrOperationFailed, cause)
			}
			return nil, j.stepError(ctx, KindAnalysis, cause)
		}
		if len(res.Result) == 0 {
			return nil, j.stepError(ctx, KindAnalysis, fmt.Errorf("%w: empty result", analysis.ErrOperationFailed))
		}
		return res.Result, nil
	}
}

func (j *job) upload(ctx, ioCtx context.Context, output []byte) error {
	if err := j.enter(ctx, PhaseUploading); err != nil {
		return err
	}
	err := j.opts.Retry.do(ctx, ioCtx, j.wait, "upload", j.item.Identity, func(c context.Context) error {
		_, err := j.p.Dest.SaveWithKey(c, j.output, outputContentType, bytes.NewReader(output))
		return err
	})
	if err != nil {
		return j.stepError(ctx, KindUpload, err)
	}
	return nil
}

// enter checks for cancellation at a step boundary and moves the job to phase.
func (j *job) enter(ctx context.Context, phase JobPhase) error {
	if err := ctx.Err(); err != nil {
		return j.cancelled(err)
	}
	j.moveTo(phase)
	return nil
}

func (j *job) moveTo(phase JobPhase) {
	from := j.state.Phase
	if err := j.state.transition(phase); err != nil {
		panic(err)
	}
	if from == phase {
		return
	}
	telemetry.Info("batch.job.transition", map[string]any{
		"runId":    j.runID,
		"identity": j.item.Identity,
		"from":     string(from),
		"to":       string(phase),
	})
	j.agg.OnTransition(j.item.Identity, from, phase)
	for _, o := range j.observers {
		o.OnTransition(j.item.Identity, from, phase)
	}
}

func (j *job) cancelled(cause error) error {
	return &StepError{Kind: KindCancelled, Identity: j.item.Identity, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
}

// stepError wraps err as kind, unless err came from a cancelled wait.
func (j *job) stepError(ctx context.Context, kind ErrorKind, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return j.cancelled(err)
	}
	return &StepError{Kind: kind, Identity: j.item.Identity, Err: err}
}

func (j *job) succeed() JobResult {
	j.moveTo(PhaseSucceeded)
	return j.result(StatusSucceeded, nil)
}

func (j *job) fail(err error) JobResult {
	j.state.LastError = err
	if !j.state.Phase.Terminal() {
		j.moveTo(PhaseFailed)
	}
	return j.result(StatusFailed, err)
}

func (j *job) result(status JobStatus, err error) JobResult {
	j.state.FinishedAt = j.p.clock()()
	return JobResult{
		RunID:           j.runID,
		Identity:        j.item.Identity,
		OutputIdentity:  j.output,
		Status:          status,
		Err:             err,
		Kind:            KindOf(err),
		Duration:        j.state.FinishedAt.Sub(j.state.StartedAt),
		BytesDownloaded: j.state.BytesDownloaded,
		Pages:           j.state.Pages,
		Polls:           j.state.Polls,
		FinishedAt:      j.state.FinishedAt,
	}
}

// finish reports the terminal result to metrics, the log and the aggregator.
func (j *job) finish(result JobResult) {
	metrics.ObserveJobDuration(result.Duration)
	fields := map[string]any{
		"runId":      j.runID,
		"identity":   result.Identity,
		"output":     result.OutputIdentity,
		"status":     string(result.Status),
		"durationMs": result.Duration.Milliseconds(),
		"polls":      result.Polls,
	}
	if result.Status == StatusSucceeded {
		metrics.IncJobSucceeded()
		telemetry.Info("batch.job.succeeded", fields)
	} else {
		metrics.IncJobFailed()
		fields["kind"] = string(result.Kind)
		fields["error"] = result.Err
		telemetry.Error("batch.job.failed", fields)
	}
	j.agg.OnTerminal(result)
}

// notify hands the terminal result to the registered observers.
func (j *job) notify(result JobResult) {
	for _, o := range j.observers {
		o.OnTerminal(result)
	}
}

func kindForPhase(phase JobPhase) ErrorKind {
	switch phase {
	case PhaseSubmitted:
		return KindSubmit
	case PhasePolling:
		return KindAnalysis
	case PhaseUploading:
		return KindUpload
	default:
		return KindDownload
	}
}
