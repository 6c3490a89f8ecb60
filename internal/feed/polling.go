package feed

import (
	"context"
	"errors"
	"time"

	"feedmux/internal/logger"
)

// ErrPollUnreachable reports that the polling loop stopped because the
// provider was demoted to Unreachable.
var ErrPollUnreachable = errors.New("polling loop: provider unreachable")

// PollingLoop fetches one symbol from one provider on a fixed cadence.
// Transient failures skip the tick; a permanent failure or the health
// threshold stops the loop. Every successful fetch is delivered exactly
// once, stamped at receipt.
type PollingLoop struct {
	provider Provider
	symbol   string
	state    *ProviderState
	deliver  func(Sample)

	interval     time.Duration
	fetchTimeout time.Duration
}

func newPollingLoop(p Provider, symbol string, state *ProviderState, opts Options, deliver func(Sample)) *PollingLoop {
	interval := p.Descriptor().PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollingLoop{
		provider:     p,
		symbol:       symbol,
		state:        state,
		deliver:      deliver,
		interval:     interval,
		fetchTimeout: opts.FetchTimeout,
	}
}

// Run blocks until the loop stops. Returns nil on context cancellation,
// ErrPollUnreachable (wrapping the provider error) when the provider is
// demoted.
func (p *PollingLoop) Run(ctx context.Context) error {
	// First fetch immediately so a fresh subscription is not blind for a
	// whole interval.
	if err := p.tick(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *PollingLoop) tick(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	sample, err := p.provider.Fetch(fetchCtx, p.symbol)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if IsPermanent(err) {
			p.state.RecordPermanent(err)
			return errors.Join(ErrPollUnreachable, err)
		}
		if p.state.RecordFailure(err) == Unreachable {
			return errors.Join(ErrPollUnreachable, err)
		}
		logger.Warnf("[feed] %s poll from %s failed, skipping tick: %v", p.symbol, p.provider.Descriptor().ID, err)
		return nil
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now()
	}
	p.state.RecordSuccess(sample.Time)
	p.deliver(sample)
	return nil
}
