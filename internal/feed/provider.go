package feed

import (
	"context"
	"time"
)

// Descriptor is the static configuration of one data source. Loaded at
// startup and immutable for the lifetime of a feed.
type Descriptor struct {
	ID           string        `json:"id"`
	Priority     int           `json:"priority"`
	Streaming    bool          `json:"streaming"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Provider is one external price source normalized to the feed's types.
// Implementations hold no cross-call state beyond connection handles.
type Provider interface {
	Descriptor() Descriptor

	// Fetch returns the current price for symbol. Failures are wrapped
	// as TransientError or PermanentError.
	Fetch(ctx context.Context, symbol string) (Sample, error)

	// OpenStream opens a fresh push stream for symbol. The returned
	// channel closes when the connection drops; there is no resumption,
	// callers reconnect by calling OpenStream again. Providers with
	// Descriptor().Streaming == false return a PermanentError.
	OpenStream(ctx context.Context, symbol string) (<-chan Sample, error)

	Close() error
}

// sleepWithContext waits out d, returning false if ctx ends first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > max {
		next = max
	}
	return next
}
