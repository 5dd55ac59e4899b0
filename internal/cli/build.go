package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/literature"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/logging"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/telemetry"
)

// app holds the wired pipeline and everything that must be closed after it
type app struct {
	cfg        *model.Config
	logger     *slog.Logger
	encoder    embed.Encoder
	metrics    *telemetry.Metrics
	aggregator *pipeline.Aggregator
	closers    []io.Closer
}

// Close releases the cache and the log file
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newLogger builds the structured logger from configuration
func newLogger(cfg *model.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(cfg.Logging, cfg.Output.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// newEncoder builds the configured encoder behind the embedding cache
func newEncoder(ctx context.Context, cfg *model.Config, c cache.Cache) (embed.Encoder, error) {
	enc, err := embed.NewEncoder(ctx, cfg.Embedding, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	return embed.NewCachedEncoder(enc, c, cfg.Cache.DiskTTL), nil
}

// buildApp wires cache, model, encoder, retriever, literature search,
// fact checker, metrics and the aggregator
func buildApp(ctx context.Context, cfg *model.Config) (_ *app, err error) {
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logStartup(logger, cfg)

	c, cacheCloser, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cacheCloser)

	// The model is optional unless the retriever generates answers itself:
	// without it multi-stage falls back and external checks degrade.
	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		if strings.EqualFold(cfg.Retrieval.Engine, "weaviate") {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		logger.Warn("LLM provider unavailable; multi-stage and external checks will degrade",
			"provider", cfg.LLM.Provider, "error", err)
		provider = nil
	}

	a.encoder, err = newEncoder(ctx, cfg, c)
	if err != nil {
		return nil, err
	}

	retriever, err := retrieve.New(cfg.Retrieval, cfg.HTTP, provider, cfg.LLM.Temperature, logger)
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}

	searcher, err := literature.New(cfg.External, cfg.HTTP, c, cfg.Cache.DiskTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("literature search: %w", err)
	}

	checker := factcheck.NewChecker(provider, searcher, a.encoder,
		factcheck.OptionsFromConfig(cfg.External, cfg.Safety.Thresholds, logger))

	a.metrics = telemetry.NewMetrics()

	a.aggregator, err = pipeline.NewAggregator(cfg, pipeline.Dependencies{
		Retriever: retriever,
		Encoder:   a.encoder,
		Provider:  provider,
		Checker:   checker,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// writeMetrics dumps the registry when a path was given
func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := a.metrics.WriteToTextfile(path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
