package feed

import "time"

const (
	defaultHistoryCapacity  = 200
	defaultFailureThreshold = 3
	defaultPollInterval     = 3 * time.Second
	defaultFetchTimeout     = 5 * time.Second
	defaultBackoffInitial   = time.Second
	defaultBackoffMax       = 30 * time.Second
	defaultNoSourceCooldown = 60 * time.Second
	defaultUpdateBuffer     = 64
)

// Options tunes the failover machinery. Zero values fall back to the
// defaults above.
type Options struct {
	// HistoryCapacity bounds the per-symbol rolling buffer.
	HistoryCapacity int

	// FailureThreshold is how many consecutive transient failures demote
	// a provider from Degraded to Unreachable.
	FailureThreshold int

	// FetchTimeout bounds each poll/probe network call.
	FetchTimeout time.Duration

	// BackoffInitial/BackoffMax bound the streaming reconnect delay.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// NoSourceCooldown is the wait before probing the top-priority
	// provider once every provider for a symbol is Unreachable.
	NoSourceCooldown time.Duration

	// UpdateBuffer is the per-subscription channel depth.
	UpdateBuffer int
}

func (o Options) withDefaults() Options {
	if o.HistoryCapacity <= 0 {
		o.HistoryCapacity = defaultHistoryCapacity
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaultFailureThreshold
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = defaultFetchTimeout
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = defaultBackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = defaultBackoffMax
	}
	if o.NoSourceCooldown <= 0 {
		o.NoSourceCooldown = defaultNoSourceCooldown
	}
	if o.UpdateBuffer <= 0 {
		o.UpdateBuffer = defaultUpdateBuffer
	}
	return o
}
