package strategy

import (
	"testing"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series строит серию свечей по функции цены закрытия
func series(n int, closeAt func(i int) float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := closeAt(i)
		candles[i] = &models.Candle{
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    50,
			CloseTime: start.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return candles
}

func TestNewEntryUnknownIndicator(t *testing.T) {
	_, err := NewEntry(config.EntryRuleConfig{Name: "bad", Indicator: "astrology"})
	assert.Error(t, err)
}

func TestRSIEntryInsufficientHistory(t *testing.T) {
	entry, err := NewEntry(config.EntryRuleConfig{Name: "rsi_oversold", Indicator: "rsi"})
	require.NoError(t, err)

	// Короткая серия — NEUTRAL, не ошибка и не паника
	signal := entry.GenerateSignal(series(5, func(i int) float64 { return 100 }))
	assert.Equal(t, models.SignalNeutral, signal.Kind)

	signal = entry.GenerateSignal(nil)
	assert.Equal(t, models.SignalNeutral, signal.Kind)
}

func TestRSIEntryOversold(t *testing.T) {
	entry, err := NewEntry(config.EntryRuleConfig{Name: "rsi_oversold", Indicator: "rsi"})
	require.NoError(t, err)

	// Монотонное падение: RSI у нуля, сигнал на покупку с полной уверенностью
	signal := entry.GenerateSignal(series(30, func(i int) float64 { return 100 - float64(i)*0.5 }))
	assert.Equal(t, models.SignalBuy, signal.Kind)
	assert.Equal(t, 100.0, signal.Confidence)
	assert.Equal(t, "ETHUSDT", signal.Symbol)
	assert.Greater(t, signal.Price, 0.0)

	// Монотонный рост порог не пробивает
	signal = entry.GenerateSignal(series(30, func(i int) float64 { return 100 + float64(i)*0.5 }))
	assert.Equal(t, models.SignalNeutral, signal.Kind)
}

func TestEMACrossEntry(t *testing.T) {
	entry, err := NewEntry(config.EntryRuleConfig{
		Name: "ema_trend", Indicator: "ema_cross", FastPeriod: 20, SlowPeriod: 50,
	})
	require.NoError(t, err)

	// На росте быстрая EMA выше медленной
	signal := entry.GenerateSignal(series(80, func(i int) float64 { return 100 + float64(i) }))
	assert.Equal(t, models.SignalBuy, signal.Kind)
	assert.LessOrEqual(t, signal.Confidence, 100.0)

	// На падении условие не выполняется
	signal = entry.GenerateSignal(series(80, func(i int) float64 { return 200 - float64(i) }))
	assert.Equal(t, models.SignalNeutral, signal.Kind)
}

func TestEMACrossBadPeriods(t *testing.T) {
	_, err := NewEntry(config.EntryRuleConfig{
		Name: "ema_bad", Indicator: "ema_cross", FastPeriod: 50, SlowPeriod: 20,
	})
	assert.Error(t, err)
}

func TestSetEvaluateRegimeSelection(t *testing.T) {
	set, err := NewSet(config.StrategyConfig{
		Entries: []config.EntryRuleConfig{
			{Name: "trend_only", Indicator: "ema_cross", Regimes: []string{"trending_calm", "trending_volatile"}},
			{Name: "always_on", Indicator: "rsi"},
		},
	})
	require.NoError(t, err)

	candles := series(80, func(i int) float64 { return 100 + float64(i) })

	// В боковике активно только правило без меток режимов
	signals := set.Evaluate(candles, models.RegimeChoppyCalm)
	require.Len(t, signals, 1)
	assert.Equal(t, "always_on", signals[0].Strategy)

	// В тренде работают оба
	signals = set.Evaluate(candles, models.RegimeTrendingCalm)
	assert.Len(t, signals, 2)
}

func exitConfig() config.ExitConfig {
	return config.ExitConfig{
		TakeProfitPct: 5.0,
		StopLossPct:   2.0,
		RSIPeriod:     14,
		RSIOverbought: 70,
	}
}

func TestExitTakeProfit(t *testing.T) {
	exit := NewThresholdExit(exitConfig())

	candles := series(30, func(i int) float64 { return 100 + float64(i)*0.2 })
	lastClose := candles[len(candles)-1].Close
	entryPrice := lastClose / 1.06 // прибыль ~6%

	signal := exit.GenerateSignal(candles, entryPrice)
	assert.Equal(t, models.SignalSell, signal.Kind)
	assert.Equal(t, models.ExitTakeProfit, signal.ExitReason)
	assert.InDelta(t, 6.0, signal.PnlPercent, 0.01)
}

func TestExitStopLoss(t *testing.T) {
	exit := NewThresholdExit(exitConfig())

	candles := series(30, func(i int) float64 { return 100 - float64(i)*0.2 })
	lastClose := candles[len(candles)-1].Close
	entryPrice := lastClose / 0.97 // убыток ~3%

	signal := exit.GenerateSignal(candles, entryPrice)
	assert.Equal(t, models.SignalSell, signal.Kind)
	assert.Equal(t, models.ExitStopLoss, signal.ExitReason)
	assert.Less(t, signal.PnlPercent, -2.0)
}

func TestExitThresholdBeatsIndicator(t *testing.T) {
	exit := NewThresholdExit(exitConfig())

	// Монотонный рост: RSI в зоне перекупленности И прибыль выше порога.
	// При одновременном срабатывании процентный порог имеет приоритет.
	candles := series(30, func(i int) float64 { return 100 + float64(i)*0.5 })
	lastClose := candles[len(candles)-1].Close
	entryPrice := lastClose / 1.08

	signal := exit.GenerateSignal(candles, entryPrice)
	assert.Equal(t, models.SignalSell, signal.Kind)
	assert.Equal(t, models.ExitTakeProfit, signal.ExitReason)
}

func TestExitIndicatorReversal(t *testing.T) {
	exit := NewThresholdExit(exitConfig())

	// RSI перекуплен, но PnL внутри порогов — выход по сигналу
	candles := series(30, func(i int) float64 { return 100 + float64(i)*0.5 })
	lastClose := candles[len(candles)-1].Close
	entryPrice := lastClose / 1.01

	signal := exit.GenerateSignal(candles, entryPrice)
	assert.Equal(t, models.SignalSell, signal.Kind)
	assert.Equal(t, models.ExitSignal, signal.ExitReason)
}

func TestExitHold(t *testing.T) {
	exit := NewThresholdExit(exitConfig())

	// Слабое снижение: пороги не задеты, RSI низкий
	candles := series(30, func(i int) float64 { return 100 - float64(i)*0.01 })
	lastClose := candles[len(candles)-1].Close
	entryPrice := lastClose * 1.001

	signal := exit.GenerateSignal(candles, entryPrice)
	assert.Equal(t, models.SignalHold, signal.Kind)

	// Пустая серия или нулевая цена входа — HOLD без паники
	assert.Equal(t, models.SignalHold, exit.GenerateSignal(nil, 100).Kind)
	assert.Equal(t, models.SignalHold, exit.GenerateSignal(candles, 0).Kind)
}

func riskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTrade:    0.01,
		StopLossPct:     1.0,
		ATRMultiplier:   1.5,
		MaxPositionSize: 0.25,
		TakeProfitRatio: 2.0,
	}
}

func TestSizePositionCappedByMaxSize(t *testing.T) {
	risk := NewATRRisk(riskConfig())

	// До ограничения: 10000×0.01 / (1/100) = 10000, затем кап 25% портфеля
	sizing := risk.SizePosition(10000, 100, 0)
	assert.InDelta(t, 2500.0, sizing.PositionValueUSD, 1e-9)
	assert.InDelta(t, 25.0, sizing.Quantity, 1e-9)
	assert.InDelta(t, 99.0, sizing.StopLossPrice, 1e-9)
	assert.InDelta(t, 102.0, sizing.TakeProfitPrice, 1e-9)
}

func TestSizePositionATRFloor(t *testing.T) {
	cfg := riskConfig()
	cfg.MaxPositionSize = 0.5
	risk := NewATRRisk(cfg)

	// ATR×1.5 = 3 шире процентного стопа 1: дистанция берется по ATR
	sizing := risk.SizePosition(10000, 100, 2)
	assert.InDelta(t, 10000*0.01/(3.0/100), sizing.PositionValueUSD, 1e-9)
	assert.InDelta(t, 97.0, sizing.StopLossPrice, 1e-9)
}

func TestSizePositionDegenerateInput(t *testing.T) {
	risk := NewATRRisk(riskConfig())

	assert.Zero(t, risk.SizePosition(0, 100, 1).PositionValueUSD)
	assert.Zero(t, risk.SizePosition(10000, 0, 1).PositionValueUSD)
}
