package engine

import (
	"context"
	"sync"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/internal/guardrail"
	"github.com/skalibog/acre/internal/regime"
	"github.com/skalibog/acre/internal/storage"
	"github.com/skalibog/acre/internal/strategy"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// Evaluation результат оценки одного символа
type Evaluation struct {
	Symbol  string
	Regime  models.RegimeLabel
	Signals []models.Signal // сигналы, прошедшие порог уверенности
}

// Engine объединяет классификатор режимов и набор стратегий:
// по свечам из хранилища определяет режим, запускает применимые
// правила входа и отфильтровывает слабые сигналы через guardrail
type Engine struct {
	config     config.Config
	store      storage.MarketStore
	classifier *regime.Classifier
	strategies *strategy.Set
	audit      guardrail.Audit
	symbols    []string
}

// NewEngine создает движок сигналов
func NewEngine(cfg config.Config, store storage.MarketStore, strategies *strategy.Set, audit guardrail.Audit) *Engine {
	return &Engine{
		config:     cfg,
		store:      store,
		classifier: regime.NewClassifier(cfg.Regime),
		strategies: strategies,
		audit:      audit,
		symbols:    cfg.Trading.Symbols,
	}
}

// GenerateSignals оценивает все отслеживаемые символы
func (e *Engine) GenerateSignals(ctx context.Context) (map[string]*Evaluation, error) {
	results := make(map[string]*Evaluation)
	var wg sync.WaitGroup
	var mutex sync.Mutex

	for _, symbol := range e.symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			evaluation, err := e.evaluateSymbol(ctx, sym)
			if err != nil {
				// Логируем ошибку, но продолжаем для других символов
				logger.Warn("Ошибка оценки символа", zap.String("symbol", sym), zap.Error(err))
				return
			}

			mutex.Lock()
			results[sym] = evaluation
			mutex.Unlock()
		}(symbol)
	}

	wg.Wait()
	return results, nil
}

// evaluateSymbol оценивает один символ
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) (*Evaluation, error) {
	candles, err := e.store.GetCandles(ctx, symbol, e.config.Trading.Interval, e.config.Trading.Lookback)
	if err != nil {
		return nil, err
	}

	// Классификатор не ошибается: короткая серия дает unknown
	label := e.classifier.Classify(candles)
	if err := e.store.SaveRegime(ctx, symbol, label, candleTime(candles)); err != nil {
		logger.Warn("Не удалось сохранить режим", zap.String("symbol", symbol), zap.Error(err))
	}

	signals := e.strategies.Evaluate(candles, label)

	// Снимок флагов окружения берется заново на каждую оценку
	gate := guardrail.NewGate(guardrail.FromEnv(e.config.Guardrail), e.audit)

	evaluation := &Evaluation{Symbol: symbol, Regime: label}
	for _, signal := range signals {
		if err := e.store.SaveSignal(ctx, &signal); err != nil {
			logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", symbol), zap.Error(err))
		}

		if signal.Kind != models.SignalBuy {
			continue
		}

		// Слабые сигналы отсекаются бизнес-правилом, не ошибкой
		if !gate.ValidateConfidence(signal.Confidence) {
			logger.Debug("Сигнал ниже порога уверенности",
				zap.String("symbol", symbol),
				zap.String("strategy", signal.Strategy),
				zap.Float64("confidence", signal.Confidence))
			continue
		}

		evaluation.Signals = append(evaluation.Signals, signal)
	}

	logger.Info("Символ оценен",
		zap.String("symbol", symbol),
		zap.String("regime", string(label)),
		zap.Int("actionable", len(evaluation.Signals)))

	return evaluation, nil
}

// SizeEntry рассчитывает размер позиции для входа по сигналу
func (e *Engine) SizeEntry(candles []*models.Candle, portfolioValue, currentPrice float64) models.PositionSizing {
	atr := e.classifier.LastATR(candles)
	return e.strategies.Risk().SizePosition(portfolioValue, currentPrice, atr)
}

// candleTime возвращает время закрытия последней свечи серии
func candleTime(candles []*models.Candle) time.Time {
	if len(candles) == 0 {
		return time.Now()
	}
	return candles[len(candles)-1].CloseTime
}
