package events

import (
	"context"
	"time"

	"docintel-batch/internal/batch"
	"docintel-batch/internal/shared/telemetry"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher delivers completion events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(ctx context.Context, ev Event) error {
	_ = ctx
	_ = ev
	return nil
}

// Notifier publishes an Event for every terminal job. Publishing failures are logged
// and never affect the job.
type Notifier struct {
	Publisher Publisher
	Timeout   time.Duration
}

func NewNotifier(p Publisher) *Notifier {
	return &Notifier{Publisher: p, Timeout: defaultPublishTimeout}
}

func (n *Notifier) OnStart(identity string) {}

func (n *Notifier) OnTransition(identity string, from, to batch.JobPhase) {}

func (n *Notifier) OnTerminal(result batch.JobResult) {
	if n == nil || n.Publisher == nil {
		return
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := n.Publisher.Publish(ctx, FromResult(result)); err != nil {
		telemetry.Warn("events.publish_failed", map[string]any{
			"runId":    result.RunID,
			"identity": result.Identity,
			"error":    err,
		})
	}
}

var (
	_ Publisher      = Noop{}
	_ batch.Observer = (*Notifier)(nil)
)
