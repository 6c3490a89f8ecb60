package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRegistrySortsByPriority(t *testing.T) {
	path := writeRoster(t, `
symbols: [btc, eth, bitcoin]
providers:
  - id: sim
    priority: 99
    streaming: true
  - id: coincap
    priority: 1
    streaming: true
    poll_interval: 3s
  - id: binance
    priority: 2
    streaming: true
`)
	reg, err := NewRegistry(path)
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap.Entries, 3)
	assert.Equal(t, "coincap", snap.Entries[0].ID)
	assert.Equal(t, "binance", snap.Entries[1].ID)
	assert.Equal(t, "sim", snap.Entries[2].ID)
	assert.Equal(t, 3*time.Second, snap.Entries[0].Interval())
	assert.Zero(t, snap.Entries[1].Interval())

	// bitcoin normalizes to BTC and dedupes.
	assert.Equal(t, []string{"BTC", "ETH"}, snap.Symbols)
}

func TestRegistrySkipsDisabledAndDuplicates(t *testing.T) {
	path := writeRoster(t, `
providers:
  - id: coincap
    priority: 1
  - id: coincap
    priority: 5
  - id: sim
    priority: 2
    enabled: false
  - id: binance
    priority: 3
`)
	reg, err := NewRegistry(path)
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "coincap", snap.Entries[0].ID)
	assert.Equal(t, 1, snap.Entries[0].Priority)
	assert.Equal(t, "binance", snap.Entries[1].ID)

	entry, ok := reg.Entry("COINCAP")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Priority)
}

func TestRegistryRejectsUnknownField(t *testing.T) {
	path := writeRoster(t, `
providers:
  - id: coincap
    priority: 1
    weight: 10
`)
	_, err := NewRegistry(path)
	require.Error(t, err)
}

func TestRegistryRejectsEmptyRoster(t *testing.T) {
	path := writeRoster(t, `
providers:
  - id: sim
    priority: 1
    enabled: false
`)
	_, err := NewRegistry(path)
	require.Error(t, err)
}

func TestFactoryAppliesRosterOverrides(t *testing.T) {
	enabled := true
	snap := Snapshot{
		Entries: []Entry{
			{ID: "sim", Priority: 4, Streaming: false, PollInterval: "250ms", Enabled: &enabled},
		},
	}
	provs, err := Build(snap, GatewayConfigs{SimInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, provs, 1)

	desc := provs[0].Descriptor()
	assert.Equal(t, "sim", desc.ID)
	assert.Equal(t, 4, desc.Priority)
	assert.False(t, desc.Streaming)
	assert.Equal(t, 250*time.Millisecond, desc.PollInterval)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := Build(Snapshot{Entries: []Entry{{ID: "kraken", Priority: 1}}}, GatewayConfigs{})
	require.Error(t, err)
}
