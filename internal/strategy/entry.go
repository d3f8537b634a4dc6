package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
)

// ruleEntry единое параметризованное правило входа:
// индикатор, сравнение, порог. Все варианты стратегий входа
// различаются только этими параметрами и функцией индикатора.
type ruleEntry struct {
	name       string
	regimes    map[models.RegimeLabel]bool
	comparison string // "lt" или "gt"
	threshold  float64
	lookback   int
	scale      float64 // ширина зоны, на которой уверенность растет до 100
	value      func(closes []float64) float64
}

// Name возвращает имя правила
func (r *ruleEntry) Name() string {
	return r.name
}

// AppliesTo сообщает, активно ли правило в данном режиме.
// Правило без меток режимов применимо всегда.
func (r *ruleEntry) AppliesTo(regime models.RegimeLabel) bool {
	if len(r.regimes) == 0 {
		return true
	}
	return r.regimes[regime]
}

// GenerateSignal оценивает правило на хвосте серии.
// Серия короче окна индикатора дает NEUTRAL, не ошибку.
func (r *ruleEntry) GenerateSignal(candles []*models.Candle) models.Signal {
	symbol := seriesSymbol(candles)

	if len(candles) < r.lookback {
		return neutralSignal(r.name, symbol,
			fmt.Sprintf("недостаточно истории: %d свечей при окне %d", len(candles), r.lookback))
	}

	closes := closePrices(candles)
	value := r.value(closes)

	triggered := false
	switch r.comparison {
	case "lt":
		triggered = value < r.threshold
	case "gt":
		triggered = value > r.threshold
	}

	if !triggered {
		return neutralSignal(r.name, symbol,
			fmt.Sprintf("условие не выполнено: %.2f %s %.2f", value, r.comparison, r.threshold))
	}

	confidence := clampConfidence(math.Abs(value-r.threshold) / r.scale * 100)

	return models.Signal{
		Symbol:     symbol,
		Strategy:   r.name,
		Timestamp:  time.Now(),
		Kind:       models.SignalBuy,
		Confidence: confidence,
		Price:      closes[len(closes)-1],
		Reasoning:  fmt.Sprintf("%s: %.2f %s %.2f", r.name, value, r.comparison, r.threshold),
	}
}

// parseRegimes преобразует метки режимов из конфигурации
func parseRegimes(labels []string) map[models.RegimeLabel]bool {
	if len(labels) == 0 {
		return nil
	}
	regimes := make(map[models.RegimeLabel]bool, len(labels))
	for _, label := range labels {
		regimes[models.RegimeLabel(label)] = true
	}
	return regimes
}

// validComparison проверяет оператор сравнения, подставляя значение по умолчанию
func validComparison(comparison, fallback string) (string, error) {
	if comparison == "" {
		return fallback, nil
	}
	if comparison != "lt" && comparison != "gt" {
		return "", fmt.Errorf("неизвестный оператор сравнения: %q", comparison)
	}
	return comparison, nil
}

// newRSIRule правило по перепроданности/перекупленности RSI
func newRSIRule(cfg config.EntryRuleConfig) (Entry, error) {
	comparison, err := validComparison(cfg.Comparison, "lt")
	if err != nil {
		return nil, err
	}

	period := cfg.Period
	if period == 0 {
		period = 14
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 30
	}

	return &ruleEntry{
		name:       cfg.Name,
		regimes:    parseRegimes(cfg.Regimes),
		comparison: comparison,
		threshold:  threshold,
		lookback:   period + 1,
		scale:      30, // полная уверенность при уходе RSI на 30 пунктов за порог
		value: func(closes []float64) float64 {
			rsi := talib.Rsi(closes, period)
			return rsi[len(rsi)-1]
		},
	}, nil
}

// newEMACrossRule правило по расхождению быстрой и медленной EMA
func newEMACrossRule(cfg config.EntryRuleConfig) (Entry, error) {
	comparison, err := validComparison(cfg.Comparison, "gt")
	if err != nil {
		return nil, err
	}

	fast := cfg.FastPeriod
	if fast == 0 {
		fast = 20
	}
	slow := cfg.SlowPeriod
	if slow == 0 {
		slow = 50
	}
	if fast >= slow {
		return nil, fmt.Errorf("быстрый период %d должен быть меньше медленного %d", fast, slow)
	}

	return &ruleEntry{
		name:       cfg.Name,
		regimes:    parseRegimes(cfg.Regimes),
		comparison: comparison,
		threshold:  cfg.Threshold,
		lookback:   slow,
		scale:      2, // расхождение EMA в 2% цены считается максимальным
		value: func(closes []float64) float64 {
			fastEMA := talib.Ema(closes, fast)
			slowEMA := talib.Ema(closes, slow)
			lastClose := closes[len(closes)-1]
			return (fastEMA[len(fastEMA)-1] - slowEMA[len(slowEMA)-1]) / math.Max(lastClose, 1e-4) * 100
		},
	}, nil
}

// newMACDRule правило по нормализованной гистограмме MACD
func newMACDRule(cfg config.EntryRuleConfig) (Entry, error) {
	comparison, err := validComparison(cfg.Comparison, "gt")
	if err != nil {
		return nil, err
	}

	fast := cfg.FastPeriod
	if fast == 0 {
		fast = 12
	}
	slow := cfg.SlowPeriod
	if slow == 0 {
		slow = 26
	}
	signal := cfg.Period
	if signal == 0 {
		signal = 9
	}

	return &ruleEntry{
		name:       cfg.Name,
		regimes:    parseRegimes(cfg.Regimes),
		comparison: comparison,
		threshold:  cfg.Threshold,
		lookback:   slow + signal,
		scale:      100,
		value: func(closes []float64) float64 {
			_, _, hist := talib.Macd(closes, fast, slow, signal)

			// Нормализуем гистограмму по ее максимальной амплитуде
			maxHist := 0.0
			for _, h := range hist {
				if math.Abs(h) > maxHist {
					maxHist = math.Abs(h)
				}
			}
			if maxHist == 0 {
				return 0
			}
			return hist[len(hist)-1] / maxHist * 100
		},
	}, nil
}
