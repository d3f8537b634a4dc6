package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/internal/exchange"
	"github.com/skalibog/acre/internal/guardrail"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// ConfirmToken строка подтверждения интерактивного запуска
const ConfirmToken = "REBALANCE"

// DeviationThreshold порог отклонения после исполнения, процентные пункты
const DeviationThreshold = 2.0

// minTradeUSD сделки мельче этой суммы не отправляются
const minTradeUSD = 1.0

// ErrNotConfirmed запуск остановлен на шаге подтверждения
var ErrNotConfirmed = errors.New("ребалансировка не подтверждена")

// TrancheError отказ одного транша лестницы. Не фатален для
// остальных траншей, эскалируется оператору на шаге сверки.
type TrancheError struct {
	Asset   string
	Tranche int
	Err     error
}

// Error реализует интерфейс error
func (e *TrancheError) Error() string {
	return fmt.Sprintf("транш %d %s: %v", e.Tranche, e.Asset, e.Err)
}

// Store хранилище состояния оркестратора
type Store interface {
	LoadSimulation() (*models.SimulationResult, error)
	AppendLedger(rec models.LedgerRecord) error
	AcquireLock() (func(), error)
}

// RunOptions опции одного запуска ребалансировки
type RunOptions struct {
	AutoExecute  bool
	ConfirmToken string
}

// Report итог запуска ребалансировки
type Report struct {
	Mode      guardrail.Mode
	Targets   map[string]float64
	Trades    []models.TradeInstruction
	Failures  []*TrancheError
	Deviant   []string
	PostDrift map[string]float64
}

// Orchestrator проводит ребалансировку по машине состояний
// LOAD_TARGETS → CONFIRM → EXECUTE → VERIFY → LOG
type Orchestrator struct {
	config        config.RebalanceConfig
	staticTargets map[string]float64
	portfolio     exchange.PortfolioSource
	execution     exchange.Execution
	store         Store
	newGate       func() *guardrail.Gate
}

// NewOrchestrator создает оркестратор ребалансировки.
// newGate вызывается заново перед исполнением: режим торговли
// никогда не кэшируется между шагами.
func NewOrchestrator(
	cfg config.RebalanceConfig,
	staticTargets map[string]float64,
	portfolio exchange.PortfolioSource,
	execution exchange.Execution,
	store Store,
	newGate func() *guardrail.Gate,
) *Orchestrator {
	return &Orchestrator{
		config:        cfg,
		staticTargets: staticTargets,
		portfolio:     portfolio,
		execution:     execution,
		store:         store,
		newGate:       newGate,
	}
}

// Run выполняет один прогон ребалансировки
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	release, err := o.store.AcquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	// LOAD_TARGETS: свежий результат симуляции, иначе статические цели
	targets := o.loadTargets()

	// CONFIRM: без флага автоисполнения или токена дальше не идем.
	// Прерывание процесса до подтверждения тоже останавливает запуск.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !opts.AutoExecute && opts.ConfirmToken != ConfirmToken {
		logger.Warn("Запуск остановлен на шаге подтверждения")
		return nil, ErrNotConfirmed
	}

	// Шлюз пересоздается здесь, а не при конструировании оркестратора:
	// флаги окружения могли измениться с момента старта процесса
	gate := o.newGate()
	mode := gate.TradingMode()
	logger.Info("Режим исполнения определен", zap.String("mode", string(mode)))

	allocation, err := o.portfolio.CurrentAllocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения портфеля перед исполнением: %w", err)
	}

	trades := o.BuildTrades(allocation.Weights(), targets, allocation.TotalUSD)

	// EXECUTE: источники капитала освобождаются раньше покупок
	report := &Report{Mode: mode, Targets: targets, Trades: trades}
	var executedUSD float64
	for _, trade := range trades {
		if err := gate.ValidateTradeSize(trade.AmountUSD); err != nil {
			report.Failures = append(report.Failures, &TrancheError{Asset: trade.Asset, Err: err})
			continue
		}
		if err := gate.ValidateDailyExposure(trade.AmountUSD, executedUSD); err != nil {
			report.Failures = append(report.Failures, &TrancheError{Asset: trade.Asset, Err: err})
			continue
		}

		failures := o.execute(ctx, trade, allocation)
		report.Failures = append(report.Failures, failures...)
		executedUSD += trade.AmountUSD
	}

	// VERIFY: дрейф пересчитывается против того же набора целей,
	// что использовался при исполнении
	postAllocation, err := o.portfolio.CurrentAllocation(ctx)
	if err != nil {
		logger.Error("Сверка после исполнения недоступна", zap.Error(err))
	} else {
		report.PostDrift = Drift(postAllocation.Weights(), targets)
		for asset, d := range report.PostDrift {
			if math.Abs(d) >= DeviationThreshold {
				report.Deviant = append(report.Deviant, asset)
			}
		}
		sort.Strings(report.Deviant)
		if len(report.Deviant) > 0 {
			// Только предупреждение оператору, автоматической
			// повторной ребалансировки нет
			logger.Warn("Отклонение после исполнения требует внимания",
				zap.Strings("assets", report.Deviant),
				zap.Any("drift", report.PostDrift))
		}
	}

	// LOG: отказ журнала сообщается, но уже исполненные сделки
	// не отменяет
	record := models.LedgerRecord{
		Timestamp: time.Now(),
		Env:       gate.Safety().Env,
		RealMode:  gate.RealTradingAllowed(),
		Targets:   targets,
		Drift:     report.PostDrift,
		Deviant:   report.Deviant,
	}
	if err := o.store.AppendLedger(record); err != nil {
		logger.Error("Не удалось записать журнал ребалансировки", zap.Error(err))
	}

	return report, nil
}

// loadTargets возвращает цели запуска: свежий результат симуляции
// или статические веса при его отсутствии
func (o *Orchestrator) loadTargets() map[string]float64 {
	sim, err := o.store.LoadSimulation()
	if err != nil {
		logger.Warn("Результат симуляции нечитаем", zap.Error(err))
	}

	maxAge := time.Duration(o.config.MaxSimAgeMin) * time.Minute
	if sim != nil && err == nil && time.Since(sim.Timestamp) <= maxAge {
		logger.Info("Цели взяты из результата симуляции",
			zap.Time("simulated_at", sim.Timestamp))
		return copyWeights(sim.Targets)
	}

	// Деградированный режим всегда отражается в логе
	logger.Warn("Свежей симуляции нет, используются статические цели")
	return copyWeights(o.staticTargets)
}

// BuildTrades строит упорядоченный список сделок: сначала продажи
// и высвобождение залога, затем покупки
func (o *Orchestrator) BuildTrades(current, targets map[string]float64, portfolioValue float64) []models.TradeInstruction {
	drift := Drift(current, targets)

	collateral := make(map[string]bool, len(o.config.CollateralAssets))
	for _, asset := range o.config.CollateralAssets {
		collateral[asset] = true
	}

	var sells, buys []models.TradeInstruction
	for asset, d := range drift {
		amount := portfolioValue * math.Abs(d) / 100
		if amount < minTradeUSD {
			continue
		}

		switch {
		case d > 0 && collateral[asset]:
			sells = append(sells, models.TradeInstruction{
				Asset: asset, Side: models.TradeWithdraw, AmountUSD: amount,
			})
		case d > 0:
			sells = append(sells, models.TradeInstruction{
				Asset: asset, Side: models.TradeSell, AmountUSD: amount,
			})
		case d < 0:
			buys = append(buys, models.TradeInstruction{
				Asset:     asset,
				Side:      models.TradeBuy,
				AmountUSD: amount,
				Tranches:  o.config.LadderTranches,
				Step:      o.config.LadderStep,
			})
		}
	}

	// Детерминированный порядок внутри групп
	sort.Slice(sells, func(i, j int) bool { return sells[i].Asset < sells[j].Asset })
	sort.Slice(buys, func(i, j int) bool { return buys[i].Asset < buys[j].Asset })

	return append(sells, buys...)
}

// execute отправляет одну инструкцию исполнителю
func (o *Orchestrator) execute(ctx context.Context, trade models.TradeInstruction, allocation *models.CurrentAllocation) []*TrancheError {
	switch trade.Side {
	case models.TradeWithdraw:
		if err := o.execution.WithdrawCollateral(ctx, trade.Asset, trade.AmountUSD); err != nil {
			return []*TrancheError{{Asset: trade.Asset, Err: err}}
		}
		return nil
	case models.TradeSell:
		if err := o.execution.Sell(ctx, trade.Asset, trade.AmountUSD); err != nil {
			return []*TrancheError{{Asset: trade.Asset, Err: err}}
		}
		return nil
	default:
		return o.ladderBuy(ctx, trade, allocation)
	}
}

// ladderBuy разбивает покупку на равные транши с симметричными
// смещениями цены вокруг спота. Транши независимы: отказ одного
// не прерывает остальные.
func (o *Orchestrator) ladderBuy(ctx context.Context, trade models.TradeInstruction, allocation *models.CurrentAllocation) []*TrancheError {
	tranches := trade.Tranches
	if tranches < 1 {
		tranches = 1
	}

	spot := 0.0
	if holding, ok := allocation.Holdings[trade.Asset]; ok && holding.Amount > 0 {
		spot = holding.ValueUSD / holding.Amount
	}

	offsets := LadderOffsets(tranches, trade.Step)
	trancheUSD := trade.AmountUSD / float64(tranches)

	var failures []*TrancheError
	for i, offset := range offsets {
		limitPrice := 0.0
		if spot > 0 {
			limitPrice = spot * (1 + offset)
		}

		err := o.execution.Buy(ctx, trade.Asset, trancheUSD, exchange.BuyOptions{
			LimitPrice:     limitPrice,
			MaxSlippagePct: o.config.MaxSlippagePct,
		})
		if err != nil {
			failure := &TrancheError{Asset: trade.Asset, Tranche: i, Err: err}
			logger.Error("Отказ транша лестницы", zap.Error(failure))
			failures = append(failures, failure)
			continue
		}

		logger.Info("Транш лестницы отправлен",
			zap.String("asset", trade.Asset),
			zap.Int("tranche", i),
			zap.Float64("usd", trancheUSD),
			zap.Float64("offset", offset))
	}

	return failures
}

// LadderOffsets возвращает симметричные смещения цены для лестницы:
// offset_i = -step + 2·step·i/(N-1). Одна ступень дает нулевое смещение.
func LadderOffsets(tranches int, step float64) []float64 {
	if tranches <= 1 {
		return []float64{0}
	}

	offsets := make([]float64, tranches)
	for i := 0; i < tranches; i++ {
		offsets[i] = -step + 2*step*float64(i)/float64(tranches-1)
	}
	return offsets
}
