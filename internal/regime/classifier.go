package regime

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// epsilon защищает от деления на ноль при нормализации по цене
const epsilon = 1e-4

// Classifier классифицирует рыночный режим по серии свечей
type Classifier struct {
	config config.RegimeConfig
}

// NewClassifier создает новый классификатор режимов
func NewClassifier(cfg config.RegimeConfig) *Classifier {
	return &Classifier{
		config: cfg,
	}
}

// Classify определяет режим рынка по серии свечей.
// Никогда не возвращает ошибку: пустая или слишком короткая серия
// дает RegimeUnknown, серия короче медленной EMA оценивается только
// по волатильности (тренд считается отсутствующим).
func (c *Classifier) Classify(candles []*models.Candle) models.RegimeLabel {
	n := len(candles)
	if n == 0 {
		return models.RegimeUnknown
	}

	// Для ATR нужен хотя бы один полный период плюс предыдущее закрытие
	if n < c.config.ATRPeriod+1 {
		logger.Debug("Недостаточно свечей для классификации режима",
			zap.Int("candles", n),
			zap.Int("required", c.config.ATRPeriod+1))
		return models.RegimeUnknown
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, candle := range candles {
		highs[i] = candle.High
		lows[i] = candle.Low
		closes[i] = candle.Close
	}

	lastClose := closes[n-1]

	// Волатильность: ATR как доля последней цены
	atr := talib.Atr(highs, lows, closes, c.config.ATRPeriod)
	volatilityPct := atr[n-1] / math.Max(lastClose, epsilon)
	isVolatile := volatilityPct > c.config.VolatilityThreshold

	// Тренд: расстояние между быстрой и медленной EMA как доля цены.
	// Пока свечей меньше медленного периода, тренд не определяется —
	// talib заполняет неполные окна нулями, и их читать нельзя.
	isTrending := false
	emaDiff := 0.0
	if n >= c.config.SlowEMA {
		fast := talib.Ema(closes, c.config.FastEMA)
		slow := talib.Ema(closes, c.config.SlowEMA)
		emaDiff = math.Abs(fast[n-1]-slow[n-1]) / math.Max(lastClose, epsilon)
		isTrending = emaDiff > c.config.TrendThreshold
	}

	label := labelFor(isTrending, isVolatile)

	logger.Debug("Классификация режима",
		zap.String("symbol", candles[n-1].Symbol),
		zap.Float64("volatility_pct", volatilityPct),
		zap.Float64("ema_diff", emaDiff),
		zap.String("regime", string(label)))

	return label
}

// LastATR возвращает последнее значение ATR для серии свечей.
// Для слишком короткой серии возвращает 0.
func (c *Classifier) LastATR(candles []*models.Candle) float64 {
	n := len(candles)
	if n < c.config.ATRPeriod+1 {
		return 0
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, candle := range candles {
		highs[i] = candle.High
		lows[i] = candle.Low
		closes[i] = candle.Close
	}

	atr := talib.Atr(highs, lows, closes, c.config.ATRPeriod)
	return atr[n-1]
}

// labelFor сводит два признака в одну из четырех меток режима
func labelFor(isTrending, isVolatile bool) models.RegimeLabel {
	switch {
	case isTrending && isVolatile:
		return models.RegimeTrendingVolatile
	case isTrending:
		return models.RegimeTrendingCalm
	case isVolatile:
		return models.RegimeChoppyVolatile
	default:
		return models.RegimeChoppyCalm
	}
}
