package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(symbol string, price float64, ts time.Time) Sample {
	return Sample{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(price),
		Time:   ts,
		Source: "test",
	}
}

func TestHistoryBufferEviction(t *testing.T) {
	h := NewHistoryBuffer(200)
	base := time.Now()
	for i := 0; i < 250; i++ {
		h.Append(sampleAt("BTC", float64(i), base.Add(time.Duration(i)*time.Millisecond)))
	}

	require.Equal(t, 200, h.Len("BTC"))
	recent := h.Recent("BTC", 0)
	require.Len(t, recent, 200)
	// Oldest surviving sample is #50, newest is #249, in arrival order.
	assert.True(t, recent[0].Price.Equal(decimal.NewFromInt(50)))
	assert.True(t, recent[199].Price.Equal(decimal.NewFromInt(249)))
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].Time.Before(recent[i-1].Time))
	}
}

func TestHistoryBufferLatestAndRecent(t *testing.T) {
	h := NewHistoryBuffer(10)

	_, ok := h.Latest("ETH")
	assert.False(t, ok)
	assert.Nil(t, h.Recent("ETH", 5))

	base := time.Now()
	for i := 0; i < 4; i++ {
		h.Append(sampleAt("ETH", 1000+float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	latest, ok := h.Latest("ETH")
	require.True(t, ok)
	assert.True(t, latest.Price.Equal(decimal.NewFromInt(1003)))

	recent := h.Recent("ETH", 2)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Price.Equal(decimal.NewFromInt(1002)))
	assert.True(t, recent[1].Price.Equal(decimal.NewFromInt(1003)))

	// Asking for more than retained returns everything.
	assert.Len(t, h.Recent("ETH", 50), 4)
}

func TestHistoryBufferPerSymbolIsolation(t *testing.T) {
	h := NewHistoryBuffer(5)
	base := time.Now()
	for i := 0; i < 3; i++ {
		h.Append(sampleAt(fmt.Sprintf("SYM%d", i), float64(i), base))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, h.Len(fmt.Sprintf("SYM%d", i)))
	}
}
