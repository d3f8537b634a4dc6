package strategy

import (
	"math"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
)

// ATRRisk расчет размера позиции через дистанцию до стопа.
// Риск на сделку фиксирован долей портфеля; дистанция до стопа
// не может быть уже max(цена×стоп%, ATR×множитель) — пол защищает
// от взрывного роста размера позиции на плоской серии.
type ATRRisk struct {
	config config.RiskConfig
}

// NewATRRisk создает модуль расчета позиции
func NewATRRisk(cfg config.RiskConfig) *ATRRisk {
	return &ATRRisk{
		config: cfg,
	}
}

// SizePosition рассчитывает размер позиции для входа по currentPrice
func (r *ATRRisk) SizePosition(portfolioValue, currentPrice, atr float64) models.PositionSizing {
	if portfolioValue <= 0 || currentPrice <= 0 {
		return models.PositionSizing{}
	}

	riskAmount := portfolioValue * r.config.RiskPerTrade
	stopDistance := math.Max(currentPrice*r.config.StopLossPct/100, atr*r.config.ATRMultiplier)

	positionValue := riskAmount / (stopDistance / currentPrice)

	// Ограничение максимальной доли портфеля в одной позиции
	maxValue := portfolioValue * r.config.MaxPositionSize
	if positionValue > maxValue {
		positionValue = maxValue
	}

	return models.PositionSizing{
		PositionValueUSD: positionValue,
		Quantity:         positionValue / currentPrice,
		StopLossPrice:    currentPrice - stopDistance,
		TakeProfitPrice:  currentPrice + stopDistance*r.config.TakeProfitRatio,
	}
}
