package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providerSample builds a fixture sample stamped with the provider it is
// served from, matching what a real gateway returns.
func providerSample(source, symbol string, price float64, ts time.Time) Sample {
	s := sampleAt(symbol, price, ts)
	s.Source = source
	return s
}

func recvSample(t *testing.T, sub *Subscription) Sample {
	t.Helper()
	select {
	case s, ok := <-sub.C:
		require.True(t, ok, "subscription channel closed")
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for sample")
		return Sample{}
	}
}

func TestFailoverSkipsToNextStreamingProvider(t *testing.T) {
	a := &stubProvider{
		desc: Descriptor{ID: "a", Priority: 1, Streaming: true},
		streamFn: func(ctx context.Context, symbol string) (<-chan Sample, error) {
			return nil, Transientf("connect refused")
		},
	}
	b := &stubProvider{
		desc:     Descriptor{ID: "b", Priority: 2, Streaming: true},
		streamFn: steadyStream("b", 200, time.Millisecond),
	}
	c := &stubProvider{
		desc: Descriptor{ID: "c", Priority: 3, PollInterval: time.Millisecond},
		fetchFn: func(ctx context.Context, symbol string) (Sample, error) {
			return providerSample("c", symbol, 300, time.Now()), nil
		},
	}

	agg := NewAggregator([]Provider{a, b, c}, testOptions())
	defer agg.Close()

	sub, err := agg.Subscribe("BTC")
	require.NoError(t, err)

	s := recvSample(t, sub)
	assert.Equal(t, "b", s.Source)

	mode, active := agg.Controller().Mode("BTC")
	assert.Equal(t, ModeStreaming, mode)
	assert.Equal(t, "b", active)

	// A exhausted its three connect attempts; C was never consulted
	// while B stayed healthy.
	assert.Equal(t, int32(3), a.streamCalls.Load())
	assert.Zero(t, c.fetchCalls.Load())

	states := agg.Controller().States("BTC")
	require.Len(t, states, 3)
	assert.Equal(t, Unreachable.String(), states[0].Health)
	assert.Equal(t, Healthy.String(), states[1].Health)
}

func TestFallbackToPollingWhenNoStreamingUsable(t *testing.T) {
	a := &stubProvider{
		desc: Descriptor{ID: "a", Priority: 1, Streaming: true},
		streamFn: func(ctx context.Context, symbol string) (<-chan Sample, error) {
			return nil, Permanentf("auth rejected")
		},
	}
	c := &stubProvider{
		desc: Descriptor{ID: "c", Priority: 3, PollInterval: time.Millisecond},
		fetchFn: func(ctx context.Context, symbol string) (Sample, error) {
			return providerSample("c", symbol, 300, time.Now()), nil
		},
	}

	agg := NewAggregator([]Provider{a, c}, testOptions())
	defer agg.Close()

	sub, err := agg.Subscribe("ETH")
	require.NoError(t, err)

	s := recvSample(t, sub)
	assert.Equal(t, "c", s.Source)

	mode, active := agg.Controller().Mode("ETH")
	assert.Equal(t, ModePolling, mode)
	assert.Equal(t, "c", active)
}

func TestNoSourceCooldownProbesTopProvider(t *testing.T) {
	var probeReady sync.WaitGroup
	probeReady.Add(1)
	var once sync.Once

	a := &stubProvider{
		desc: Descriptor{ID: "a", Priority: 1, Streaming: true},
		streamFn: func(ctx context.Context, symbol string) (<-chan Sample, error) {
			return nil, Transientf("connect refused")
		},
	}
	a.fetchFn = func(ctx context.Context, symbol string) (Sample, error) {
		once.Do(probeReady.Done)
		return providerSample("a", symbol, 111, time.Now()), nil
	}
	b := &stubProvider{
		desc: Descriptor{ID: "b", Priority: 2, Streaming: true},
		streamFn: func(ctx context.Context, symbol string) (<-chan Sample, error) {
			return nil, Transientf("connect refused")
		},
	}
	c := &stubProvider{
		desc: Descriptor{ID: "c", Priority: 3, PollInterval: time.Millisecond},
		fetchFn: func(ctx context.Context, symbol string) (Sample, error) {
			return Sample{}, Permanentf("unknown symbol")
		},
	}

	agg := NewAggregator([]Provider{a, b, c}, testOptions())
	defer agg.Close()

	sub, err := agg.Subscribe("BTC")
	require.NoError(t, err)

	// Everything fails: A and B burn their connect attempts, C is
	// permanently rejected, and the probe against A delivers the first
	// sample after the cooldown.
	s := recvSample(t, sub)
	assert.Equal(t, "a", s.Source)
	assert.Equal(t, int32(1), a.fetchCalls.Load())

	probeReady.Wait()
	assert.GreaterOrEqual(t, a.streamCalls.Load(), int32(3))
	assert.Equal(t, int32(3), b.streamCalls.Load())
	assert.Equal(t, int32(1), c.fetchCalls.Load())
}

func TestOutOfOrderSamplesRejected(t *testing.T) {
	now := time.Now()
	script := []Sample{
		sampleAt("BTC", 100, now),
		sampleAt("BTC", 99, now.Add(-time.Second)), // stale, must be dropped
		sampleAt("BTC", 100, now),                  // equal timestamp, also dropped
		sampleAt("BTC", 101, now.Add(time.Second)),
	}
	a := &stubProvider{desc: Descriptor{ID: "a", Priority: 1, Streaming: true}}
	a.streamFn = func(ctx context.Context, symbol string) (<-chan Sample, error) {
		if a.streamCalls.Load() > 1 {
			// Keep the session parked after the scripted replay.
			out := make(chan Sample)
			go func() {
				<-ctx.Done()
				close(out)
			}()
			return out, nil
		}
		return scriptedStream(script)(ctx, symbol)
	}

	agg := NewAggregator([]Provider{a}, testOptions())
	defer agg.Close()

	sub, err := agg.Subscribe("BTC")
	require.NoError(t, err)

	first := recvSample(t, sub)
	second := recvSample(t, sub)
	assert.True(t, first.Time.Equal(now))
	assert.True(t, second.Time.Equal(now.Add(time.Second)))

	select {
	case s := <-sub.C:
		t.Fatalf("unexpected extra sample: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, agg.History().Len("BTC"))
}

func TestUnsubscribeStopsFeedAndResubscribeRestartsSelection(t *testing.T) {
	a := &stubProvider{
		desc: Descriptor{ID: "a", Priority: 1, Streaming: true},
		streamFn: func(ctx context.Context, symbol string) (<-chan Sample, error) {
			return nil, Transientf("connect refused")
		},
	}
	b := &stubProvider{
		desc:     Descriptor{ID: "b", Priority: 2, Streaming: true},
		streamFn: steadyStream("b", 200, time.Millisecond),
	}

	agg := NewAggregator([]Provider{a, b}, testOptions())
	defer agg.Close()

	sub, err := agg.Subscribe("BTC")
	require.NoError(t, err)
	recvSample(t, sub)
	assert.Equal(t, int32(3), a.streamCalls.Load())

	agg.Unsubscribe(sub)
	assert.Empty(t, agg.Controller().ActiveSymbols())
	mode, _ := agg.Controller().Mode("BTC")
	assert.Equal(t, ModeIdle, mode)

	// Fresh subscription starts over from the top-priority provider, so
	// A gets attempted again despite its earlier demotion.
	sub2, err := agg.Subscribe("BTC")
	require.NoError(t, err)
	recvSample(t, sub2)
	assert.Equal(t, int32(6), a.streamCalls.Load())
	agg.Unsubscribe(sub2)
}

func TestConcurrentSubscribersShareOneFeed(t *testing.T) {
	// Fetch runs synchronously inside the feed task, so overlapping
	// fetches would mean overlapping feed tasks.
	var active gauge
	a := &stubProvider{desc: Descriptor{ID: "a", Priority: 1, PollInterval: time.Millisecond}}
	a.fetchFn = func(ctx context.Context, symbol string) (Sample, error) {
		active.inc()
		defer active.dec()
		time.Sleep(2 * time.Millisecond)
		return sampleAt(symbol, 100, time.Now()), nil
	}

	agg := NewAggregator([]Provider{a}, testOptions())
	defer agg.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := agg.Subscribe("BTC")
			if err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
			agg.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, active.highWater(), 1)
	assert.Empty(t, agg.Controller().ActiveSymbols())
}
