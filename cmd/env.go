package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/estimator"
	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/monitoring"
	"github.com/piececount/puzzledex/internal/resilience"
	"github.com/piececount/puzzledex/internal/stats"
	"github.com/piececount/puzzledex/internal/store"
	"github.com/piececount/puzzledex/pkg/anthropic"
)

// env bundles the wired application services for a command invocation.
type env struct {
	Store   store.Store
	Gate    *gate.Gate
	Stats   *stats.Collector
	Metrics *monitoring.Metrics
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "puzzledex.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEstimator(metrics *monitoring.Metrics) (estimator.Estimator, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (PUZZLEDEX_ANTHROPIC_KEY)")
	}

	images, err := estimator.NewImageFetcher(cfg.Images.CacheSize)
	if err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Anthropic.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Anthropic.MaxRetries
	}
	if cfg.Anthropic.BackoffMillis > 0 {
		retry.InitialBackoff = time.Duration(cfg.Anthropic.BackoffMillis) * time.Millisecond
	}
	if cfg.Anthropic.MaxBackoffSecs > 0 {
		retry.MaxBackoff = time.Duration(cfg.Anthropic.MaxBackoffSecs) * time.Second
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	return estimator.NewClaude(client, cfg.Anthropic.Model,
		estimator.WithImageFetcher(images),
		estimator.WithRateLimit(cfg.Anthropic.RatePerSecond, cfg.Anthropic.RateBurst),
		estimator.WithRetryConfig(retry),
		estimator.WithMetrics(metrics),
	), nil
}

// initEnv wires store, estimator, gate, and stats for a command.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	metrics := monitoring.NewMetrics()

	est, err := initEstimator(metrics)
	if err != nil {
		st.Close()
		return nil, err
	}

	g := gate.New(st, est,
		gate.WithTimeout(time.Duration(cfg.Gate.LookupTimeoutSecs)*time.Second),
		gate.WithMetrics(metrics),
	)

	return &env{
		Store:   st,
		Gate:    g,
		Stats:   stats.NewCollector(st),
		Metrics: metrics,
	}, nil
}
