package batch

import (
	"context"
	"errors"
	"time"

	"docintel-batch/internal/shared/metrics"
	"docintel-batch/internal/shared/telemetry"
)

const defaultMaxRetryDelay = 30 * time.Second

// RetryPolicy bounds retries of a single collaborator call. Attempts is the number of
// retries after the first call; zero disables retrying.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy retries twice with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, BaseDelay: time.Second, MaxDelay: defaultMaxRetryDelay}
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type retryAfterer interface {
	RetryAfter() time.Duration
}

func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}
	d := p.BaseDelay
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	var hinted retryAfterer
	if errors.As(err, &hinted) && hinted.RetryAfter() > d {
		d = hinted.RetryAfter()
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// do runs fn, retrying transient failures. fn receives ioCtx so a started call is not
// interrupted, while the backoff wait observes ctx.
func (p RetryPolicy) do(ctx, ioCtx context.Context, wait waitFunc, op, identity string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ioCtx)
		if err == nil {
			return nil
		}
		if attempt >= p.Attempts || !IsTransient(err) {
			return err
		}
		d := p.delay(attempt, err)
		metrics.IncRetry()
		telemetry.Warn("batch.retry", map[string]any{
			"op":       op,
			"identity": identity,
			"attempt":  attempt + 1,
			"delayMs":  d.Milliseconds(),
			"error":    err,
		})
		if werr := wait(ctx, d); werr != nil {
			return werr
		}
	}
}
