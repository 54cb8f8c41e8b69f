package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Observer receives job lifecycle events. Methods are called concurrently from job
// goroutines. OnTerminal runs after the job has given up its concurrency slot.
type Observer interface {
	OnStart(identity string)
	OnTransition(identity string, from, to JobPhase)
	OnTerminal(result JobResult)
}

// RunBatch schedules toProcess on a pool of at most maxConcurrency concurrent jobs and
// waits for every started job to finish. maxConcurrency below 1 runs sequentially.
func (p *Processor) RunBatch(ctx context.Context, toProcess []WorkItem, maxConcurrency int) BatchOutcome {
	opts := p.Options
	opts.MaxConcurrency = maxConcurrency
	opts, warnings := opts.normalize()

	agg := newAggregator(p.runID(), len(toProcess), nil, len(toProcess), p.clock())
	reportWarnings(agg, warnings)
	p.current.Store(agg)

	p.runBatch(ctx, toProcess, opts, agg)
	agg.Finish()
	return agg.Summary()
}

// runBatch starts jobs greedily as slots free up. Once ctx is cancelled no further job
// starts; the remaining items are counted as not started.
func (p *Processor) runBatch(ctx context.Context, toProcess []WorkItem, opts Options, agg *Aggregator) {
	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))

	var wg sync.WaitGroup
	for i, item := range toProcess {
		if err := sem.Acquire(ctx, 1); err != nil {
			agg.MarkInterrupted(len(toProcess) - i)
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			agg.MarkInterrupted(len(toProcess) - i)
			break
		}

		j := p.newJob(agg, item, opts)
		j.start()
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := j.run(ctx)
			func() {
				defer sem.Release(1)
				j.finish(result)
			}()
			j.notify(result)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		agg.MarkInterrupted(0)
	}
}
