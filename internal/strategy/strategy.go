package strategy

import (
	"fmt"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// Entry генерирует сигнал входа по серии свечей.
// Недостаток истории трактуется как NEUTRAL, не как ошибка.
type Entry interface {
	Name() string
	AppliesTo(regime models.RegimeLabel) bool
	GenerateSignal(candles []*models.Candle) models.Signal
}

// Exit генерирует сигнал выхода по серии свечей и цене входа
type Exit interface {
	Name() string
	GenerateSignal(candles []*models.Candle, entryPrice float64) models.Signal
}

// Risk рассчитывает размер позиции
type Risk interface {
	SizePosition(portfolioValue, currentPrice, atr float64) models.PositionSizing
}

// entryConstructors статический реестр конструкторов правил входа.
// Разрешается на старте процесса, динамической загрузки нет.
var entryConstructors = map[string]func(cfg config.EntryRuleConfig) (Entry, error){
	"rsi":       newRSIRule,
	"ema_cross": newEMACrossRule,
	"macd":      newMACDRule,
}

// NewEntry создает правило входа по декларативному описанию
func NewEntry(cfg config.EntryRuleConfig) (Entry, error) {
	constructor, ok := entryConstructors[cfg.Indicator]
	if !ok {
		return nil, fmt.Errorf("неизвестный индикатор правила входа: %q", cfg.Indicator)
	}
	return constructor(cfg)
}

// Set представляет набор стратегий, собранный из конфигурации
type Set struct {
	entries []Entry
	exit    Exit
	risk    Risk
}

// NewSet собирает набор стратегий из конфигурации
func NewSet(cfg config.StrategyConfig) (*Set, error) {
	entries := make([]Entry, 0, len(cfg.Entries))
	for _, ruleCfg := range cfg.Entries {
		entry, err := NewEntry(ruleCfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания правила %q: %w", ruleCfg.Name, err)
		}
		entries = append(entries, entry)
	}

	return &Set{
		entries: entries,
		exit:    NewThresholdExit(cfg.Exit),
		risk:    NewATRRisk(cfg.Risk),
	}, nil
}

// Exit возвращает модуль выхода набора
func (s *Set) Exit() Exit {
	return s.exit
}

// Risk возвращает модуль расчета позиции набора
func (s *Set) Risk() Risk {
	return s.risk
}

// Evaluate запускает правила входа, применимые к текущему режиму.
// Стратегии внутри режим не учитывают — отбор происходит здесь,
// по статическим меткам применимости.
func (s *Set) Evaluate(candles []*models.Candle, regime models.RegimeLabel) []models.Signal {
	signals := make([]models.Signal, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.AppliesTo(regime) {
			logger.Debug("Правило не применимо к режиму",
				zap.String("strategy", entry.Name()),
				zap.String("regime", string(regime)))
			continue
		}
		signals = append(signals, entry.GenerateSignal(candles))
	}
	return signals
}

// clampConfidence ограничивает уверенность диапазоном [0, 100]
func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

// neutralSignal строит нейтральный сигнал с пояснением
func neutralSignal(name, symbol, reasoning string) models.Signal {
	return models.Signal{
		Symbol:    symbol,
		Strategy:  name,
		Timestamp: time.Now(),
		Kind:      models.SignalNeutral,
		Reasoning: reasoning,
	}
}

// seriesSymbol возвращает символ серии свечей
func seriesSymbol(candles []*models.Candle) string {
	if len(candles) == 0 {
		return ""
	}
	return candles[len(candles)-1].Symbol
}

// closePrices извлекает цены закрытия из серии
func closePrices(candles []*models.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	return closes
}
