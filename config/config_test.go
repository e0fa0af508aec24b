package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Accounts, 4)

	tick, err := cfg.Simulation.ParseTickInterval()
	assert.NoError(t, err)
	assert.Equal(t, time.Second, tick)

	snap, err := cfg.Simulation.ParseSnapshotInterval()
	assert.NoError(t, err)
	assert.Equal(t, 30*time.Second, snap)
}

func TestInstrumentTableFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	table := cfg.InstrumentTable()
	assert.Len(t, table, 8)

	// Each call returns an independent copy.
	table["EURUSD"] = table["USDJPY"]
	assert.NotEqual(t, table["EURUSD"], cfg.InstrumentTable()["EURUSD"])
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
accounts:
  - name: VIP
    balance: 25000
trading:
  leverage: 50
  swap_rate_buy: -0.0001
  swap_rate_sell: 0.00005
  commission_rate: 0.0001
simulation:
  tick_interval: 500ms
  snapshot_interval: 10s
server:
  addr: ":9000"
  timezone: "Europe/London"
store:
  dir: "/tmp/trades"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 25000.0, cfg.Accounts[0].Balance)
	assert.Equal(t, 50.0, cfg.Trading.Leverage)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	tick, err := cfg.Simulation.ParseTickInterval()
	assert.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, tick)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Accounts = nil
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Accounts = append(cfg.Accounts, AccountConfig{Name: "VIP", Balance: 100})
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Trading.Leverage = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Simulation.TickInterval = "soon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}
