package providers

import (
	"fmt"
	"time"

	"feedmux/internal/feed"
	"feedmux/internal/gateway/binance"
	"feedmux/internal/gateway/coincap"
	"feedmux/internal/gateway/sim"
)

// GatewayConfigs carries the per-gateway settings the factory needs to
// instantiate a roster entry.
type GatewayConfigs struct {
	CoinCap coincap.Config
	Binance binance.Config

	SimInterval time.Duration
}

// Build instantiates the enabled roster in priority order. The registry
// entry is authoritative for priority, streaming mode and poll cadence;
// gateway configs only supply credentials and endpoints.
func Build(snap Snapshot, cfgs GatewayConfigs) ([]feed.Provider, error) {
	out := make([]feed.Provider, 0, len(snap.Entries))
	for _, entry := range snap.Entries {
		base, err := newSource(entry, cfgs)
		if err != nil {
			return nil, err
		}
		desc := base.Descriptor()
		desc.Priority = entry.Priority
		desc.Streaming = entry.Streaming
		if iv := entry.Interval(); iv > 0 {
			desc.PollInterval = iv
		}
		out = append(out, configured{Provider: base, desc: desc})
	}
	return out, nil
}

func newSource(entry Entry, cfgs GatewayConfigs) (feed.Provider, error) {
	switch entry.ID {
	case "coincap":
		cfg := cfgs.CoinCap
		cfg.Priority = entry.Priority
		return coincap.New(cfg), nil
	case "binance":
		cfg := cfgs.Binance
		cfg.Priority = entry.Priority
		return binance.New(cfg)
	case "sim":
		return sim.New(entry.Priority, cfgs.SimInterval), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", entry.ID)
	}
}

// configured overrides a source's descriptor with roster settings.
type configured struct {
	feed.Provider
	desc feed.Descriptor
}

func (c configured) Descriptor() feed.Descriptor { return c.desc }
