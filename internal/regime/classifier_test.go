package regime

import (
	"testing"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
	"github.com/stretchr/testify/assert"
)

func testConfig() config.RegimeConfig {
	return config.RegimeConfig{
		ATRPeriod:           14,
		FastEMA:             50,
		SlowEMA:             200,
		VolatilityThreshold: 0.015,
		TrendThreshold:      0.005,
	}
}

// makeCandles строит серию свечей по функциям цены и размаха
func makeCandles(n int, closeAt func(i int) float64, span float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := closeAt(i)
		candles[i] = &models.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + span/2,
			Low:       c - span/2,
			Close:     c,
			Volume:    100,
			CloseTime: start.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return candles
}

func TestClassifyEmptySeries(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Пустая и nil-серия дают unknown без паники
	assert.Equal(t, models.RegimeUnknown, classifier.Classify(nil))
	assert.Equal(t, models.RegimeUnknown, classifier.Classify([]*models.Candle{}))
}

func TestClassifyShortSeries(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Меньше одного полного окна ATR — режим не определяется
	candles := makeCandles(10, func(i int) float64 { return 100 }, 0.5)
	assert.Equal(t, models.RegimeUnknown, classifier.Classify(candles))
}

func TestClassifyMediumSeriesNoTrendLeg(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Свечей хватает на ATR, но не на медленную EMA:
	// даже монотонный рост не должен давать трендовую метку
	candles := makeCandles(100, func(i int) float64 { return 100 + float64(i)*0.3 }, 0.1)
	assert.Equal(t, models.RegimeChoppyCalm, classifier.Classify(candles))
}

func TestClassifyTrendingCalm(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Монотонный рост с малым размахом: тренд есть, волатильность низкая
	candles := makeCandles(250, func(i int) float64 { return 100 + float64(i)*0.3 }, 0.1)
	assert.Equal(t, models.RegimeTrendingCalm, classifier.Classify(candles))
}

func TestClassifyChoppyVolatile(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Плоская цена с большим размахом свечей: волатильно, без тренда
	candles := makeCandles(250, func(i int) float64 { return 100 }, 6)
	assert.Equal(t, models.RegimeChoppyVolatile, classifier.Classify(candles))
}

func TestClassifyTrendingVolatile(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Рост с большим размахом: тренд и волатильность одновременно
	candles := makeCandles(250, func(i int) float64 { return 100 + float64(i)*0.3 }, 6)
	assert.Equal(t, models.RegimeTrendingVolatile, classifier.Classify(candles))
}

func TestLastATR(t *testing.T) {
	classifier := NewClassifier(testConfig())

	// Для плоской серии с размахом 2 ATR сходится к 2
	candles := makeCandles(50, func(i int) float64 { return 100 }, 2)
	atr := classifier.LastATR(candles)
	assert.InDelta(t, 2.0, atr, 0.1)

	// Короткая серия — ATR недоступен
	assert.Zero(t, classifier.LastATR(makeCandles(5, func(i int) float64 { return 100 }, 2)))
}
