package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
binance:
  testnet: true
trading:
  symbols:
    - BTCUSDT
    - ETHUSDT
  interval: 4h
strategy:
  entries:
    - name: rsi_oversold
      indicator: rsi
      threshold: 25
rebalance:
  targets:
    BTC: 0.6
    USDT: 0.4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, "4h", cfg.Trading.Interval)

	require.Len(t, cfg.Strategy.Entries, 1)
	assert.Equal(t, "rsi", cfg.Strategy.Entries[0].Indicator)
	assert.Equal(t, 25.0, cfg.Strategy.Entries[0].Threshold)

	// Незаполненные поля получают значения по умолчанию
	assert.Equal(t, 250, cfg.Trading.Lookback)
	assert.Equal(t, 14, cfg.Regime.ATRPeriod)
	assert.Equal(t, 200, cfg.Regime.SlowEMA)
	assert.Equal(t, 60.0, cfg.Guardrail.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Rebalance.LadderTranches)
	assert.Equal(t, "data", cfg.Storage.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "нет.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading: [не карта"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateTargets(t *testing.T) {
	assert.NoError(t, ValidateTargets(map[string]float64{"BTC": 0.6, "USDT": 0.4}))

	// Сумма в пределах допуска 1 ± 0.01
	assert.NoError(t, ValidateTargets(map[string]float64{"BTC": 0.6, "USDT": 0.405}))

	assert.Error(t, ValidateTargets(nil))
	assert.Error(t, ValidateTargets(map[string]float64{"BTC": 0.5}))
	assert.Error(t, ValidateTargets(map[string]float64{"BTC": 1.0, "USDT": 0.0}))
	assert.Error(t, ValidateTargets(map[string]float64{"BTC": 1.5, "USDT": -0.5}))
}

func TestTargetsFallback(t *testing.T) {
	cfg := &Config{}
	cfg.Rebalance.Targets = map[string]float64{"BTC": 0.9} // сумма вне допуска

	targets := cfg.Targets()
	assert.Equal(t, DefaultTargets(), targets)
}

func TestTargetsReturnsCopy(t *testing.T) {
	cfg := &Config{}
	cfg.Rebalance.Targets = map[string]float64{"BTC": 0.6, "USDT": 0.4}

	targets := cfg.Targets()
	targets["BTC"] = 0.1

	assert.Equal(t, 0.6, cfg.Rebalance.Targets["BTC"])
}
