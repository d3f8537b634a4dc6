package rebalance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simConfig() config.RebalanceConfig {
	return config.RebalanceConfig{
		FeeRateMin:      0.001,
		FeeRateMax:      0.001,
		SlippageRateMin: 0.0005,
		SlippageRateMax: 0.0005,
		RiskFreeRate:    0.0,
		BullScenario:    0.05,
		BearScenario:    -0.05,
	}
}

func TestDrift(t *testing.T) {
	current := map[string]float64{"BTC": 0.50, "ETH": 0.25, "USDT": 0.25}
	targets := map[string]float64{"BTC": 0.40, "ETH": 0.30, "USDT": 0.30}

	drift := Drift(current, targets)
	assert.InDelta(t, 10.0, drift["BTC"], 1e-9)
	assert.InDelta(t, -5.0, drift["ETH"], 1e-9)
	assert.InDelta(t, -5.0, drift["USDT"], 1e-9)
}

func TestDriftAssetOutsideTargets(t *testing.T) {
	// Актив вне целевого набора дрейфует к нулевому весу
	drift := Drift(map[string]float64{"DOGE": 0.07}, map[string]float64{"BTC": 1.0})
	assert.InDelta(t, 7.0, drift["DOGE"], 1e-9)
	assert.InDelta(t, -100.0, drift["BTC"], 1e-9)
}

func TestSimulateCostScalesWithDrift(t *testing.T) {
	// Диапазоны схлопнуты в точку, розыгрыш детерминирован:
	// проверяется структурное свойство роста издержек с дрейфом
	sim := NewSimulator(simConfig(), nil, rand.New(rand.NewSource(1)))

	targets := map[string]float64{"BTC": 0.5, "USDT": 0.5}
	small := sim.Simulate(map[string]float64{"BTC": 0.52, "USDT": 0.48}, targets, 10000)
	large := sim.Simulate(map[string]float64{"BTC": 0.70, "USDT": 0.30}, targets, 10000)

	assert.Greater(t, large.TxCostEstimate, small.TxCostEstimate)

	// При ставках 0.1% + 0.05% и суммарном дрейфе 4 п.п.:
	// 10000 × 0.04 × 0.0015 = 0.6
	assert.InDelta(t, 0.6, small.TxCostEstimate, 1e-9)
}

func TestSimulateSharpe(t *testing.T) {
	sim := NewSimulator(simConfig(), nil, rand.New(rand.NewSource(1)))
	targets := map[string]float64{"BTC": 1.0}

	// Сценарии ±5%: среднее 0, отклонение 0.05 → Шарп 0
	result := sim.Simulate(map[string]float64{"BTC": 1.0}, targets, 10000)
	assert.InDelta(t, 0.0, result.SharpeEstimate, 1e-9)

	// Перекошенные сценарии дают положительный Шарп
	cfg := simConfig()
	cfg.BullScenario = 0.10
	cfg.BearScenario = -0.02
	result = NewSimulator(cfg, nil, rand.New(rand.NewSource(1))).
		Simulate(map[string]float64{"BTC": 1.0}, targets, 10000)
	assert.Greater(t, result.SharpeEstimate, 0.0)
}

func TestSimulateSharpeZeroStddev(t *testing.T) {
	// Одинаковые сценарии: отклонение 0, Шарп обязан быть 0, не NaN
	cfg := simConfig()
	cfg.BullScenario = 0.05
	cfg.BearScenario = 0.05

	sim := NewSimulator(cfg, nil, rand.New(rand.NewSource(1)))
	result := sim.Simulate(map[string]float64{"BTC": 1.0}, map[string]float64{"BTC": 1.0}, 10000)
	assert.Equal(t, 0.0, result.SharpeEstimate)
	assert.False(t, math.IsNaN(result.SharpeEstimate))
}

func TestSimulateDoesNotShareTargets(t *testing.T) {
	sim := NewSimulator(simConfig(), nil, rand.New(rand.NewSource(1)))

	targets := map[string]float64{"BTC": 0.5, "USDT": 0.5}
	result := sim.Simulate(map[string]float64{"BTC": 0.5, "USDT": 0.5}, targets, 10000)

	targets["BTC"] = 0.9
	assert.InDelta(t, 0.5, result.Targets["BTC"], 1e-9)
}

func TestRunPersistsResult(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	sim := NewSimulator(simConfig(), store, rand.New(rand.NewSource(1)))
	targets := map[string]float64{"BTC": 0.6, "USDT": 0.4}

	result, err := sim.Run(map[string]float64{"BTC": 0.7, "USDT": 0.3}, targets, 10000)
	require.NoError(t, err)

	loaded, err := store.LoadSimulation()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, result.Drift, loaded.Drift)
	assert.Equal(t, result.TxCostEstimate, loaded.TxCostEstimate)
}
