package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one normalized price observation. Immutable once constructed.
type Sample struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
	Source string          `json:"source"`
}

// Mode describes how a symbol's prices are currently being sourced.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeStreaming Mode = "streaming"
	ModePolling   Mode = "polling"
	ModeNoSource  Mode = "nosource"
)

// Event records a feed lifecycle transition for diagnostics.
type Event struct {
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol"`
	Provider string    `json:"provider,omitempty"`
	Kind     EventKind `json:"kind"`
	Detail   string    `json:"detail,omitempty"`
}

type EventKind string

const (
	EventHealthChange EventKind = "health_change"
	EventFeedSwitch   EventKind = "feed_switch"
	EventNoSource     EventKind = "no_source"
	EventRecovery     EventKind = "recovery_probe"
	EventSampleDrop   EventKind = "sample_drop"
)

// EventSink receives feed events. Implementations must not block; slow
// sinks should buffer internally.
type EventSink interface {
	Record(ev Event)
}
