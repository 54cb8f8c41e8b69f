package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docintel-batch/internal/analysis"
	"docintel-batch/internal/analysis/docintel"
	"docintel-batch/internal/batch"
	"docintel-batch/internal/events"
	"docintel-batch/internal/runs"
	"docintel-batch/internal/shared/config"
	"docintel-batch/internal/shared/storage/db"
	"docintel-batch/internal/shared/storage/object"
	localstore "docintel-batch/internal/shared/storage/object/local"
	s3store "docintel-batch/internal/shared/storage/object/s3"
	"docintel-batch/internal/shared/telemetry"
)

// App holds the wired dependencies of one batch process.
type App struct {
	Config    config.Config
	DB        *sql.DB
	Source    object.ObjectStore
	Dest      object.ObjectStore
	Analyzer  analysis.Client
	Runs      runs.Repo
	Publisher events.Publisher
	Processor *batch.Processor
}

// Build wires stores, the analysis client, run history and event publishing into a
// Processor. cfg is expected to have been validated.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	source, dest, err := buildStores(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	analyzer, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	var runRepo runs.Repo
	if sqlDB != nil {
		runRepo = &runs.PGRepo{DB: sqlDB}
	} else {
		runRepo = runs.NewMemoryRepo()
	}

	processor := batch.NewProcessor(source, dest, analyzer, ProcessorOptions(cfg))
	processor.Runs = runs.Recorder{Repo: runRepo}
	if _, noop := publisher.(events.Noop); !noop {
		processor.Observers = append(processor.Observers, events.NewNotifier(publisher))
	}

	return &App{
		Config:    cfg,
		DB:        sqlDB,
		Source:    source,
		Dest:      dest,
		Analyzer:  analyzer,
		Runs:      runRepo,
		Publisher: publisher,
		Processor: processor,
	}, nil
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// ProcessorOptions maps configuration onto batch options.
func ProcessorOptions(cfg config.Config) batch.Options {
	opts := batch.DefaultOptions()
	opts.MaxConcurrency = cfg.MaxConcurrency
	opts.PollInterval = cfg.PollInterval
	opts.Retry.Attempts = cfg.RetryAttempts
	opts.Retry.BaseDelay = cfg.RetryBaseDelay
	opts.RejectUnreadablePDF = cfg.RejectUnreadablePDF
	if suffix := strings.TrimSpace(cfg.OutputSuffix); suffix != "" {
		opts.OutputSuffix = suffix
	}
	return opts
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		telemetry.Info("bootstrap.runs.memory", map[string]any{"reason": "DATABASE_URL empty"})
		return nil, nil
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultBatchOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			closeDB(sqlDB)
			sqlDB = nil
		}
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.runs.memory", map[string]any{"reason": "database unavailable", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStores(ctx context.Context, cfg config.Config) (object.ObjectStore, object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		source, err := s3store.New(ctx, cfg.AWSRegion, cfg.SourceBucket, cfg.SourcePrefix, "")
		if err != nil {
			return nil, nil, fmt.Errorf("source store: %w", err)
		}
		dest, err := s3store.New(ctx, cfg.AWSRegion, cfg.OutputBucket, cfg.OutputPrefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, nil, fmt.Errorf("output store: %w", err)
		}
		return source, dest, nil
	default:
		return localstore.New(cfg.LocalSourceDir), localstore.New(cfg.LocalOutputDir), nil
	}
}

func buildAnalyzer(ctx context.Context, cfg config.Config) (analysis.Client, error) {
	if strings.TrimSpace(cfg.AnalysisEndpoint) == "" && cfg.IsDevLike() {
		telemetry.Warn("bootstrap.analysis.unconfigured", map[string]any{"reason": "DOCINTEL_ENDPOINT empty"})
		return unconfiguredAnalyzer{}, nil
	}
	return docintel.NewClient(ctx, docintel.Options{
		Endpoint:     cfg.AnalysisEndpoint,
		Model:        cfg.AnalysisModel,
		APIVersion:   cfg.AnalysisAPIVersion,
		APIKey:       cfg.AnalysisKey,
		TenantID:     cfg.AnalysisTenantID,
		ClientID:     cfg.AnalysisClientID,
		ClientSecret: cfg.AnalysisClientSecret,
		Timeout:      cfg.AnalysisTimeout,
	})
}

func buildPublisher(ctx context.Context, cfg config.Config) (events.Publisher, error) {
	if strings.TrimSpace(cfg.EventsQueueURL) == "" {
		return events.Noop{}, nil
	}
	return events.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.EventsQueueURL)
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}

var errAnalyzerUnconfigured = errors.New("analysis client not configured: set DOCINTEL_ENDPOINT")

// unconfiguredAnalyzer lets a dev run exercise discovery and skipping without a service.
type unconfiguredAnalyzer struct{}

func (unconfiguredAnalyzer) Submit(ctx context.Context, document []byte) (analysis.OperationHandle, error) {
	_ = ctx
	_ = document
	return "", fmt.Errorf("%w: %w", analysis.ErrAccessDenied, errAnalyzerUnconfigured)
}

func (unconfiguredAnalyzer) Poll(ctx context.Context, handle analysis.OperationHandle) (analysis.PollResult, error) {
	_ = ctx
	_ = handle
	return analysis.PollResult{}, fmt.Errorf("%w: %w", analysis.ErrAccessDenied, errAnalyzerUnconfigured)
}
