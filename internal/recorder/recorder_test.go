package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmux/internal/feed"
	"feedmux/internal/gateway/sim"
)

func TestRecorderPersistsSamples(t *testing.T) {
	agg := feed.NewAggregator(
		[]feed.Provider{sim.New(1, 2*time.Millisecond)},
		feed.Options{UpdateBuffer: 16},
	)
	defer agg.Close()

	rec, err := New(filepath.Join(t.TempDir(), "samples.db"), agg, time.Second)
	require.NoError(t, err)

	require.NoError(t, rec.Start(context.Background(), []string{"BTC", "ETH"}))
	require.Error(t, rec.Start(context.Background(), nil))

	deadline := time.Now().Add(2 * time.Second)
	var got []feed.Sample
	for time.Now().Before(deadline) {
		got, err = rec.Samples(context.Background(), "btc", 10)
		require.NoError(t, err)
		if len(got) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.Equal(t, "sim", got[0].Source)
	assert.True(t, got[0].Price.Sign() > 0)
	// Newest first.
	assert.False(t, got[0].Time.Before(got[1].Time))

	require.NoError(t, rec.Stop())
}

func TestRecorderRequiresPath(t *testing.T) {
	_, err := New("  ", nil, 0)
	require.Error(t, err)
}
