package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"feedmux/internal/config"
	"feedmux/internal/feed"
	"feedmux/internal/logger"
	"feedmux/internal/providers"
	"feedmux/internal/recorder"
	"feedmux/internal/store/eventlog"
	feedhttp "feedmux/internal/transport/http"
)

// App wires the aggregator, the provider roster, optional persistence and
// the HTTP surface into one runnable unit.
type App struct {
	cfg      *config.Config
	registry *providers.Registry
	agg      *feed.Aggregator
	events   *eventlog.Store
	rec      *recorder.Recorder
	httpSrv  *feedhttp.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Aggregator exposes the feed facade for embedding callers and tests.
func (a *App) Aggregator() *feed.Aggregator { return a.agg }

// Run starts the HTTP server and the sample recorder, then blocks until
// ctx ends or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			logger.Infof("feed http server listening on %s", a.httpSrv.Addr())
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("feed http server error: %w", err)
			}
			return nil
		})
	}

	if a.rec != nil {
		symbols := a.registry.Snapshot().Symbols
		if err := a.rec.Start(ctx, symbols); err != nil {
			return fmt.Errorf("recorder start failed: %w", err)
		}
		logger.Infof("recorder persisting %d symbols", len(symbols))
	}

	group.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return group.Wait()
}

func (a *App) shutdown() {
	if a.rec != nil {
		if err := a.rec.Stop(); err != nil {
			logger.Errorf("recorder stop failed: %v", err)
		}
	}
	a.agg.Close()
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			logger.Errorf("event log close failed: %v", err)
		}
	}
}
