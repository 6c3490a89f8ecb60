package feed

import (
	"sync"
	"time"
)

type Health int

const (
	Healthy Health = iota
	Degraded
	Unreachable
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "HEALTHY"
	case Degraded:
		return "DEGRADED"
	case Unreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// ProviderState is the mutable health record for one provider within one
// symbol's feed. Transitions: Healthy -> Degraded after the first failure,
// Degraded -> Unreachable once consecutive failures reach the threshold,
// any state -> Healthy on the next successful sample. A permanent provider
// error jumps straight to Unreachable.
type ProviderState struct {
	mu sync.Mutex

	descriptor          Descriptor
	health              Health
	lastSuccessAt       time.Time
	consecutiveFailures int
	lastErr             string

	threshold int
	onChange  func(from, to Health)
}

func newProviderState(desc Descriptor, threshold int, onChange func(from, to Health)) *ProviderState {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &ProviderState{
		descriptor: desc,
		health:     Healthy,
		threshold:  threshold,
		onChange:   onChange,
	}
}

func (ps *ProviderState) Descriptor() Descriptor {
	return ps.descriptor
}

func (ps *ProviderState) Health() Health {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.health
}

func (ps *ProviderState) RecordSuccess(at time.Time) {
	ps.mu.Lock()
	ps.consecutiveFailures = 0
	ps.lastSuccessAt = at
	ps.lastErr = ""
	ps.transition(Healthy)
	ps.mu.Unlock()
}

// RecordFailure notes one transient failure and returns the resulting
// health.
func (ps *ProviderState) RecordFailure(err error) Health {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.consecutiveFailures++
	if err != nil {
		ps.lastErr = err.Error()
	}
	if ps.consecutiveFailures >= ps.threshold {
		ps.transition(Unreachable)
	} else {
		ps.transition(Degraded)
	}
	return ps.health
}

// RecordPermanent disables the provider for the session.
func (ps *ProviderState) RecordPermanent(err error) {
	ps.mu.Lock()
	if err != nil {
		ps.lastErr = err.Error()
	}
	ps.consecutiveFailures = ps.threshold
	ps.transition(Unreachable)
	ps.mu.Unlock()
}

// Reset clears failure history so a recovery probe gets one fresh attempt.
func (ps *ProviderState) Reset() {
	ps.mu.Lock()
	ps.consecutiveFailures = 0
	ps.lastErr = ""
	ps.transition(Healthy)
	ps.mu.Unlock()
}

func (ps *ProviderState) transition(to Health) {
	from := ps.health
	if from == to {
		return
	}
	ps.health = to
	if ps.onChange != nil {
		ps.onChange(from, to)
	}
}

// Snapshot is the read-only view exposed to consumers and HTTP handlers.
type Snapshot struct {
	Descriptor          Descriptor `json:"descriptor"`
	Health              string     `json:"health"`
	LastSuccessAt       time.Time  `json:"last_success_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
}

func (ps *ProviderState) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Descriptor:          ps.descriptor,
		Health:              ps.health.String(),
		LastSuccessAt:       ps.lastSuccessAt,
		ConsecutiveFailures: ps.consecutiveFailures,
		LastError:           ps.lastErr,
	}
}
