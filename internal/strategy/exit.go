package strategy

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
)

// ThresholdExit модуль выхода: процентные пороги тейк-профита и
// стоп-лосса плюс разворотный сигнал по RSI. Процентные пороги
// проверяются раньше индикаторного разворота — при одновременном
// срабатывании побеждает порог.
type ThresholdExit struct {
	config config.ExitConfig
}

// NewThresholdExit создает модуль выхода
func NewThresholdExit(cfg config.ExitConfig) *ThresholdExit {
	return &ThresholdExit{
		config: cfg,
	}
}

// Name возвращает имя модуля
func (e *ThresholdExit) Name() string {
	return "threshold_exit"
}

// GenerateSignal решает, закрывать ли позицию, открытую по entryPrice
func (e *ThresholdExit) GenerateSignal(candles []*models.Candle, entryPrice float64) models.Signal {
	symbol := seriesSymbol(candles)

	if len(candles) == 0 || entryPrice <= 0 {
		return models.Signal{
			Symbol:    symbol,
			Strategy:  e.Name(),
			Timestamp: time.Now(),
			Kind:      models.SignalHold,
			Reasoning: "недостаточно данных для оценки выхода",
		}
	}

	lastClose := candles[len(candles)-1].Close
	pnlPercent := (lastClose - entryPrice) / entryPrice * 100

	if pnlPercent >= e.config.TakeProfitPct {
		return e.sellSignal(symbol, lastClose, pnlPercent, models.ExitTakeProfit,
			fmt.Sprintf("прибыль %.2f%% достигла порога %.2f%%", pnlPercent, e.config.TakeProfitPct))
	}

	if pnlPercent <= -e.config.StopLossPct {
		return e.sellSignal(symbol, lastClose, pnlPercent, models.ExitStopLoss,
			fmt.Sprintf("убыток %.2f%% достиг порога %.2f%%", pnlPercent, e.config.StopLossPct))
	}

	// Индикаторный разворот проверяется после процентных порогов.
	// Серия короче окна RSI просто пропускает эту проверку.
	if len(candles) > e.config.RSIPeriod {
		closes := closePrices(candles)
		rsi := talib.Rsi(closes, e.config.RSIPeriod)
		lastRSI := rsi[len(rsi)-1]
		if lastRSI >= e.config.RSIOverbought {
			return e.sellSignal(symbol, lastClose, pnlPercent, models.ExitSignal,
				fmt.Sprintf("RSI %.1f выше зоны перекупленности %.1f", lastRSI, e.config.RSIOverbought))
		}
	}

	return models.Signal{
		Symbol:     symbol,
		Strategy:   e.Name(),
		Timestamp:  time.Now(),
		Kind:       models.SignalHold,
		Price:      lastClose,
		PnlPercent: pnlPercent,
		Reasoning:  fmt.Sprintf("позиция удерживается, PnL %.2f%%", pnlPercent),
	}
}

// sellSignal строит сигнал на закрытие позиции
func (e *ThresholdExit) sellSignal(symbol string, price, pnlPercent float64, reason models.ExitReason, reasoning string) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Strategy:   e.Name(),
		Timestamp:  time.Now(),
		Kind:       models.SignalSell,
		Confidence: 100,
		Price:      price,
		ExitReason: reason,
		PnlPercent: pnlPercent,
		Reasoning:  reasoning,
	}
}
