package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// stubProvider is a scriptable in-memory provider for failover tests.
type stubProvider struct {
	desc     Descriptor
	fetchFn  func(ctx context.Context, symbol string) (Sample, error)
	streamFn func(ctx context.Context, symbol string) (<-chan Sample, error)

	fetchCalls  atomic.Int32
	streamCalls atomic.Int32
}

func (s *stubProvider) Descriptor() Descriptor { return s.desc }

func (s *stubProvider) Fetch(ctx context.Context, symbol string) (Sample, error) {
	s.fetchCalls.Add(1)
	if s.fetchFn == nil {
		return Sample{}, Transientf("no fetch script")
	}
	return s.fetchFn(ctx, symbol)
}

func (s *stubProvider) OpenStream(ctx context.Context, symbol string) (<-chan Sample, error) {
	s.streamCalls.Add(1)
	if s.streamFn == nil {
		return nil, Permanentf("streaming unsupported")
	}
	return s.streamFn(ctx, symbol)
}

func (s *stubProvider) Close() error { return nil }

func testOptions() Options {
	return Options{
		HistoryCapacity:  32,
		FailureThreshold: 3,
		FetchTimeout:     200 * time.Millisecond,
		BackoffInitial:   2 * time.Millisecond,
		BackoffMax:       8 * time.Millisecond,
		NoSourceCooldown: 30 * time.Millisecond,
		UpdateBuffer:     16,
	}
}

// steadyStream yields samples on a fixed cadence until ctx ends.
func steadyStream(source string, start float64, every time.Duration) func(ctx context.Context, symbol string) (<-chan Sample, error) {
	var seq atomic.Int64
	return func(ctx context.Context, symbol string) (<-chan Sample, error) {
		out := make(chan Sample, 16)
		go func() {
			defer close(out)
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n := seq.Add(1)
					sample := Sample{
						Symbol: symbol,
						Price:  decimal.NewFromFloat(start + float64(n)),
						Time:   time.Now(),
						Source: source,
					}
					select {
					case out <- sample:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	}
}

// scriptedStream replays fixed samples, then closes (a dropped
// connection).
func scriptedStream(samples []Sample) func(ctx context.Context, symbol string) (<-chan Sample, error) {
	return func(ctx context.Context, symbol string) (<-chan Sample, error) {
		out := make(chan Sample, len(samples))
		for _, s := range samples {
			out <- s
		}
		close(out)
		return out, nil
	}
}

// gauge tracks concurrent activity and its high-water mark.
type gauge struct {
	mu      sync.Mutex
	current int
	max     int
}

func (g *gauge) inc() {
	g.mu.Lock()
	g.current++
	if g.current > g.max {
		g.max = g.current
	}
	g.mu.Unlock()
}

func (g *gauge) dec() {
	g.mu.Lock()
	g.current--
	g.mu.Unlock()
}

func (g *gauge) highWater() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}
