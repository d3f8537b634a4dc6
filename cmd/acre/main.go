package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/internal/engine"
	"github.com/skalibog/acre/internal/exchange"
	"github.com/skalibog/acre/internal/guardrail"
	"github.com/skalibog/acre/internal/rebalance"
	"github.com/skalibog/acre/internal/storage"
	"github.com/skalibog/acre/internal/strategy"
	"github.com/skalibog/acre/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	runRebalance := flag.Bool("rebalance", false, "выполнить один прогон ребалансировки и выйти")
	autoExecute := flag.Bool("auto", false, "пропустить интерактивное подтверждение ребалансировки")
	flag.Parse()

	// Переменные окружения из .env, если файл есть
	_ = godotenv.Load()

	logger.Init()
	logger.Info("Запуск ACRE")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore, err := storage.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Ошибка инициализации файлового хранилища", zap.Error(err))
	}

	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка создания клиента Binance", zap.Error(err))
	}

	if *runRebalance {
		if err := rebalanceOnce(ctx, cfg, client, fileStore, *autoExecute); err != nil {
			logger.Fatal("Ребалансировка не выполнена", zap.Error(err))
		}
		return
	}

	if err := runEngine(ctx, cfg, client, fileStore); err != nil && ctx.Err() == nil {
		logger.Fatal("Движок сигналов остановлен с ошибкой", zap.Error(err))
	}

	logger.Info("Завершение работы")
}

// runEngine запускает фоновый сбор свечей и периодическую оценку
// символов до отмены контекста
func runEngine(ctx context.Context, cfg *config.Config, client *exchange.BinanceClient, fileStore *storage.FileStore) error {
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("ошибка инициализации InfluxDB: %w", err)
	}
	defer store.Close()

	set, err := strategy.NewSet(cfg.Strategy)
	if err != nil {
		return fmt.Errorf("ошибка сборки набора стратегий: %w", err)
	}

	eng := engine.NewEngine(*cfg, store, set, fileStore)

	collector := exchange.NewCandleCollector(
		client, store, cfg.Trading.Symbols, cfg.Trading.Interval, cfg.Trading.Lookback)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return collector.Start(groupCtx)
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Duration(cfg.Trading.IntervalSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				results, err := eng.GenerateSignals(groupCtx)
				if err != nil {
					logger.Error("Ошибка генерации сигналов", zap.Error(err))
					continue
				}
				for symbol, evaluation := range results {
					for _, sig := range evaluation.Signals {
						logger.Info("Actionable-сигнал",
							zap.String("symbol", symbol),
							zap.String("strategy", sig.Strategy),
							zap.String("kind", string(sig.Kind)),
							zap.Float64("confidence", sig.Confidence))
					}
				}
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
	})

	logger.Info("Движок сигналов запущен",
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.String("interval", cfg.Trading.Interval))

	err = group.Wait()
	collector.Stop()
	return err
}

// rebalanceOnce выполняет один прогон: симуляция, подтверждение,
// исполнение через оркестратор
func rebalanceOnce(ctx context.Context, cfg *config.Config, client *exchange.BinanceClient, fileStore *storage.FileStore, autoExecute bool) error {
	allocation, err := client.CurrentAllocation(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения портфеля: %w", err)
	}

	targets := cfg.Targets()

	sim := rebalance.NewSimulator(cfg.Rebalance, fileStore, nil)
	result, err := sim.Run(allocation.Weights(), targets, allocation.TotalUSD)
	if err != nil {
		return fmt.Errorf("ошибка симуляции: %w", err)
	}

	logger.Info("Предторговая оценка",
		zap.Any("drift", result.Drift),
		zap.Float64("tx_cost", result.TxCostEstimate),
		zap.Float64("sharpe", result.SharpeEstimate))

	opts := rebalance.RunOptions{AutoExecute: autoExecute}
	if !autoExecute {
		opts.ConfirmToken = promptConfirmation()
	}

	// Исполнение всегда бумажное: шлюз не возвращает режим LIVE,
	// переход к живым ордерам — отдельное ручное действие оператора
	execution := exchange.NewPaperExecution()

	newGate := func() *guardrail.Gate {
		return guardrail.NewGate(guardrail.FromEnv(cfg.Guardrail), fileStore)
	}

	orch := rebalance.NewOrchestrator(cfg.Rebalance, targets, client, execution, fileStore, newGate)
	report, err := orch.Run(ctx, opts)
	if err != nil {
		return err
	}

	logger.Info("Ребалансировка завершена",
		zap.String("mode", string(report.Mode)),
		zap.Int("trades", len(report.Trades)),
		zap.Int("failures", len(report.Failures)),
		zap.Strings("deviant", report.Deviant))

	for _, fill := range execution.Fills() {
		logger.Info("Бумажное исполнение",
			zap.String("asset", fill.Asset),
			zap.String("side", string(fill.Side)),
			zap.Float64("usd", fill.AmountUSD))
	}

	return nil
}

// promptConfirmation запрашивает у оператора токен подтверждения
func promptConfirmation() string {
	fmt.Printf("Введите %q для подтверждения ребалансировки: ", rebalance.ConfirmToken)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}
