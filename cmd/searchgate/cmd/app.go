package cmd

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/searchgate/internal/access"
	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/config"
	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/ingest"
	"github.com/Aman-CERP/searchgate/internal/journal"
	"github.com/Aman-CERP/searchgate/internal/metrics"
	"github.com/Aman-CERP/searchgate/internal/query"
	"github.com/Aman-CERP/searchgate/internal/resource"
)

// app is the wired set of components built from one configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collectors

	engine       *engine.Bleve
	manager      *resource.Manager
	orchestrator *ingest.Orchestrator
	executor     *query.Executor
	access       *access.Controller
	journal      *journal.Journal
}

// newApp wires the engine, write and query paths from cfg. A nil reg leaves
// metrics unregistered.
func newApp(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(reg)}

	eng, err := engine.NewBleve(engine.Options{
		Root:          cfg.Paths.IndexRoot,
		IdentityField: cfg.Documents.IdentityField,
		DefaultField:  cfg.Query.DefaultField,
		CacheSize:     cfg.Engine.OpenIndexCache,
		OpenTimeout:   cfg.OpenTimeout(),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	a.engine = eng

	ingestOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithObserver(a.metrics),
	}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
		a.journal = j
		ingestOpts = append(ingestOpts, ingest.WithRecorder(j))
	}

	a.manager = resource.NewManager(eng, resource.Policy{
		MaxAttempts: cfg.Locking.MaxAttempts,
		RetryDelay:  cfg.RetryDelay(),
		StaleAfter:  cfg.StaleAfter(),
	}, resource.WithLogger(logger), resource.WithObserver(a.metrics))

	partitioner := batch.NewPartitioner(cfg.Documents.IdentityField, cfg.Documents.DeletedField)
	a.orchestrator = ingest.NewOrchestrator(a.manager, eng, partitioner, ingestOpts...)

	a.executor = query.NewExecutor(eng, query.Config{
		DefaultField: cfg.Query.DefaultField,
		Limit:        cfg.Query.MaxResults,
	}, query.WithLogger(logger), query.WithObserver(a.metrics))

	// The allow-list is read on first use, not at startup.
	a.access = access.NewController(access.NewOriginSet(func() string {
		return cfg.Access.AllowedOrigins
	}))

	return a, nil
}

// Close releases the journal and the engine.
func (a *app) Close() error {
	var firstErr error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
