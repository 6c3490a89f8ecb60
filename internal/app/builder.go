package app

import (
	"fmt"
	"time"

	"feedmux/internal/config"
	"feedmux/internal/feed"
	"feedmux/internal/gateway/binance"
	"feedmux/internal/gateway/coincap"
	"feedmux/internal/logger"
	"feedmux/internal/providers"
	"feedmux/internal/recorder"
	"feedmux/internal/store/eventlog"
	feedhttp "feedmux/internal/transport/http"
)

func build(cfg *config.Config) (*App, error) {
	registry, err := providers.NewRegistry(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	snap := registry.Snapshot()
	provs, err := providers.Build(snap, gatewayConfigs(cfg))
	if err != nil {
		return nil, fmt.Errorf("provider roster: %w", err)
	}

	agg := feed.NewAggregator(provs, feedOptions(cfg.Feed))

	a := &App{cfg: cfg, registry: registry, agg: agg}

	if cfg.EventLog.Enabled {
		events, err := eventlog.New(cfg.EventLog.Path)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		agg.SetEventSink(events)
		a.events = events
	}

	if cfg.Recorder.Enabled {
		rec, err := recorder.New(cfg.Recorder.Path, agg, time.Duration(cfg.Recorder.FlushSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
		a.rec = rec
	}

	srv, err := feedhttp.NewServer(feedhttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Agg:      agg,
		Events:   a.events,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	a.httpSrv = srv

	// Roster edits while running apply to feeds started afterwards; a
	// provider set change needs a restart to rebuild live feeds.
	registry.OnChange(func(s providers.Snapshot) {
		logger.Infof("provider roster v%d reloaded: %d providers, %d symbols (live feeds keep their current roster)",
			s.Version, len(s.Entries), len(s.Symbols))
	})

	return a, nil
}

func gatewayConfigs(cfg *config.Config) providers.GatewayConfigs {
	return providers.GatewayConfigs{
		CoinCap: coincap.Config{
			APIKey:            cfg.CoinCap.APIKey,
			RESTBaseURL:       cfg.CoinCap.RESTBaseURL,
			WSBaseURL:         cfg.CoinCap.WSBaseURL,
			HTTPTimeout:       time.Duration(cfg.CoinCap.TimeoutSeconds) * time.Second,
			RequestsPerMinute: cfg.CoinCap.RequestsPerMinute,
		},
		Binance: binance.Config{
			RESTBaseURL:  cfg.Binance.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
			ProxyEnabled: cfg.Binance.Proxy.Enabled,
			RESTProxyURL: cfg.Binance.Proxy.RESTURL,
			WSProxyURL:   cfg.Binance.Proxy.WSURL,
		},
		SimInterval: time.Duration(cfg.Sim.IntervalMillis) * time.Millisecond,
	}
}

func feedOptions(fc config.FeedConfig) feed.Options {
	fetch, backoffInitial, backoffMax, cooldown := fc.Durations()
	return feed.Options{
		HistoryCapacity:  fc.HistoryCapacity,
		FailureThreshold: fc.FailureThreshold,
		FetchTimeout:     fetch,
		BackoffInitial:   backoffInitial,
		BackoffMax:       backoffMax,
		NoSourceCooldown: cooldown,
		UpdateBuffer:     fc.UpdateBuffer,
	}
}
