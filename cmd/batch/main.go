package main

// Convert every PDF in the source location into a searchable PDF:
//   go run ./cmd/batch

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"docintel-batch/internal/batch"
	"docintel-batch/internal/bootstrap"
	"docintel-batch/internal/server"
	"docintel-batch/internal/shared/config"
	"docintel-batch/internal/shared/telemetry"
	"docintel-batch/internal/shared/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		telemetry.Warn("batch.config.warning", map[string]any{
			"key":      w.Key,
			"value":    w.Value,
			"replaced": w.Replaced,
			"reason":   w.Reason,
		})
	}
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Printf("bootstrap build: %v", err)
		return 1
	}
	defer app.Close()

	if cfg.StatusAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		status, err := server.Start(server.Addr(cfg.StatusAddr), server.NewEngine(app.Processor, app.Runs))
		if err != nil {
			log.Printf("status server disabled: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = status.Shutdown(shutdownCtx)
			}()
		}
	}

	log.Printf("batch started store=%s concurrency=%d poll=%s", cfg.ObjectStoreType, cfg.MaxConcurrency, cfg.PollInterval)

	type result struct {
		outcome batch.BatchOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := app.Processor.ProcessBatch(ctx)
		done <- result{outcome: outcome, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		log.Printf("shutdown requested, waiting up to %s for in-flight jobs", cfg.ShutdownTimeout)
		select {
		case res = <-done:
		case <-time.After(cfg.ShutdownTimeout):
			log.Printf("shutdown timeout reached; exiting with in-flight jobs")
			return 1
		}
	}

	if res.err != nil {
		log.Printf("batch failed: %v", res.err)
		return 1
	}
	printSummary(res.outcome)
	if res.outcome.Interrupted {
		return 1
	}
	return 0
}

func printSummary(o batch.BatchOutcome) {
	log.Printf("batch %s finished in %s", o.RunID, util.FormatDuration(o.TotalElapsed))
	log.Printf("  discovered: %d", o.Discovered)
	log.Printf("  skipped:    %d", o.Skipped)
	log.Printf("  succeeded:  %d", o.Succeeded)
	log.Printf("  failed:     %d", o.Failed)
	if o.Attempted > 0 {
		log.Printf("  average per file: %s", util.FormatDuration(o.AverageElapsed()))
	}
	if o.Interrupted {
		log.Printf("  cancelled: %d, not started: %d", o.Cancelled, o.NotStarted)
	}
	for _, r := range o.Failures() {
		log.Printf("  FAILED %s (%s): %v", r.Identity, r.Kind, r.Err)
	}
}
