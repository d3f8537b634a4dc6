package config

import (
	"fmt"
	"math"
	"os"

	"github.com/skalibog/acre/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Trading   TradingConfig   `yaml:"trading"`
	Regime    RegimeConfig    `yaml:"regime"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Rebalance RebalanceConfig `yaml:"rebalance"`
	Storage   StorageConfig   `yaml:"storage"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	Lookback        int      `yaml:"lookback"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

// RegimeConfig настройки классификатора режимов
type RegimeConfig struct {
	ATRPeriod           int     `yaml:"atr_period"`
	FastEMA             int     `yaml:"fast_ema"`
	SlowEMA             int     `yaml:"slow_ema"`
	VolatilityThreshold float64 `yaml:"volatility_threshold"`
	TrendThreshold      float64 `yaml:"trend_threshold"`
}

// StrategyConfig настройки стратегий
type StrategyConfig struct {
	Entries []EntryRuleConfig `yaml:"entries"`
	Exit    ExitConfig        `yaml:"exit"`
	Risk    RiskConfig        `yaml:"risk"`
}

// EntryRuleConfig декларативное описание правила входа
type EntryRuleConfig struct {
	Name       string   `yaml:"name"`
	Indicator  string   `yaml:"indicator"`  // rsi, ema_cross, macd
	Comparison string   `yaml:"comparison"` // lt, gt
	Threshold  float64  `yaml:"threshold"`
	Period     int      `yaml:"period"`
	FastPeriod int      `yaml:"fast_period"`
	SlowPeriod int      `yaml:"slow_period"`
	Regimes    []string `yaml:"regimes"` // режимы, в которых правило активно
}

// ExitConfig настройки модуля выхода
type ExitConfig struct {
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
}

// RiskConfig настройки расчета размера позиции
type RiskConfig struct {
	RiskPerTrade    float64 `yaml:"risk_per_trade"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	ATRMultiplier   float64 `yaml:"atr_multiplier"`
	MaxPositionSize float64 `yaml:"max_position_size"`
	TakeProfitRatio float64 `yaml:"take_profit_ratio"`
}

// GuardrailConfig пороговые значения защитных проверок
type GuardrailConfig struct {
	MaxTradeSize        float64 `yaml:"max_trade_size"`
	MaxDailyExposure    float64 `yaml:"max_daily_exposure"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// RebalanceConfig настройки ребалансировки
type RebalanceConfig struct {
	Targets          map[string]float64 `yaml:"targets"`
	CollateralAssets []string           `yaml:"collateral_assets"`
	FeeRateMin       float64            `yaml:"fee_rate_min"`
	FeeRateMax       float64            `yaml:"fee_rate_max"`
	SlippageRateMin  float64            `yaml:"slippage_rate_min"`
	SlippageRateMax  float64            `yaml:"slippage_rate_max"`
	RiskFreeRate     float64            `yaml:"risk_free_rate"`
	BullScenario     float64            `yaml:"bull_scenario"`
	BearScenario     float64            `yaml:"bear_scenario"`
	MaxSimAgeMin     int                `yaml:"max_sim_age_minutes"`
	LadderTranches   int                `yaml:"ladder_tranches"`
	LadderStep       float64            `yaml:"ladder_step"`
	MaxSlippagePct   float64            `yaml:"max_slippage_pct"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	DataDir      string `yaml:"data_dir"`
}

// TargetSumTolerance допустимое отклонение суммы целевых весов от 1.0
const TargetSumTolerance = 0.01

// DefaultTargets целевые веса по умолчанию, используются при некорректной конфигурации
func DefaultTargets() map[string]float64 {
	return map[string]float64{
		"BTC":  0.40,
		"ETH":  0.30,
		"SOL":  0.20,
		"USDT": 0.10,
	}
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))
	logger.Info("Загружена конфигурация", zap.Any("Symbols", config.Trading.Symbols))
	return &config, nil
}

// applyDefaults подставляет значения по умолчанию для незаполненных полей
func (c *Config) applyDefaults() {
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1h"
	}
	if c.Trading.Lookback == 0 {
		c.Trading.Lookback = 250
	}
	if c.Trading.IntervalSeconds == 0 {
		c.Trading.IntervalSeconds = 60
	}
	if c.Regime.ATRPeriod == 0 {
		c.Regime.ATRPeriod = 14
	}
	if c.Regime.FastEMA == 0 {
		c.Regime.FastEMA = 50
	}
	if c.Regime.SlowEMA == 0 {
		c.Regime.SlowEMA = 200
	}
	if c.Regime.VolatilityThreshold == 0 {
		c.Regime.VolatilityThreshold = 0.015
	}
	if c.Regime.TrendThreshold == 0 {
		c.Regime.TrendThreshold = 0.005
	}
	if c.Strategy.Exit.TakeProfitPct == 0 {
		c.Strategy.Exit.TakeProfitPct = 5.0
	}
	if c.Strategy.Exit.StopLossPct == 0 {
		c.Strategy.Exit.StopLossPct = 2.0
	}
	if c.Strategy.Exit.RSIPeriod == 0 {
		c.Strategy.Exit.RSIPeriod = 14
	}
	if c.Strategy.Exit.RSIOverbought == 0 {
		c.Strategy.Exit.RSIOverbought = 70
	}
	if c.Strategy.Risk.RiskPerTrade == 0 {
		c.Strategy.Risk.RiskPerTrade = 0.01
	}
	if c.Strategy.Risk.StopLossPct == 0 {
		c.Strategy.Risk.StopLossPct = 1.0
	}
	if c.Strategy.Risk.ATRMultiplier == 0 {
		c.Strategy.Risk.ATRMultiplier = 1.5
	}
	if c.Strategy.Risk.MaxPositionSize == 0 {
		c.Strategy.Risk.MaxPositionSize = 0.25
	}
	if c.Strategy.Risk.TakeProfitRatio == 0 {
		c.Strategy.Risk.TakeProfitRatio = 2.0
	}
	if c.Guardrail.MaxTradeSize == 0 {
		c.Guardrail.MaxTradeSize = 1000
	}
	if c.Guardrail.MaxDailyExposure == 0 {
		c.Guardrail.MaxDailyExposure = 5000
	}
	if c.Guardrail.ConfidenceThreshold == 0 {
		c.Guardrail.ConfidenceThreshold = 60
	}
	if c.Rebalance.FeeRateMin == 0 {
		c.Rebalance.FeeRateMin = 0.0005
	}
	if c.Rebalance.FeeRateMax == 0 {
		c.Rebalance.FeeRateMax = 0.0015
	}
	if c.Rebalance.SlippageRateMin == 0 {
		c.Rebalance.SlippageRateMin = 0.0002
	}
	if c.Rebalance.SlippageRateMax == 0 {
		c.Rebalance.SlippageRateMax = 0.0020
	}
	if c.Rebalance.BullScenario == 0 {
		c.Rebalance.BullScenario = 0.05
	}
	if c.Rebalance.BearScenario == 0 {
		c.Rebalance.BearScenario = -0.05
	}
	if c.Rebalance.MaxSimAgeMin == 0 {
		c.Rebalance.MaxSimAgeMin = 60
	}
	if c.Rebalance.LadderTranches == 0 {
		c.Rebalance.LadderTranches = 3
	}
	if c.Rebalance.LadderStep == 0 {
		c.Rebalance.LadderStep = 0.005
	}
	if c.Rebalance.MaxSlippagePct == 0 {
		c.Rebalance.MaxSlippagePct = 0.5
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
}

// ValidateTargets проверяет корректность целевых весов:
// каждый вес в (0,1), сумма в пределах 1 ± TargetSumTolerance
func ValidateTargets(targets map[string]float64) error {
	if len(targets) == 0 {
		return fmt.Errorf("целевые веса не заданы")
	}

	var sum float64
	for asset, fraction := range targets {
		if fraction <= 0 || fraction >= 1 {
			return fmt.Errorf("недопустимый вес %s: %.4f (должен быть в интервале (0,1))", asset, fraction)
		}
		sum += fraction
	}

	if math.Abs(sum-1.0) > TargetSumTolerance {
		return fmt.Errorf("сумма целевых весов %.4f вне допуска 1.0 ± %.2f", sum, TargetSumTolerance)
	}

	return nil
}

// Targets возвращает проверенные целевые веса.
// При некорректной конфигурации возвращает веса по умолчанию —
// такой откат логируется как предупреждение, но работу не прерывает.
func (c *Config) Targets() map[string]float64 {
	if err := ValidateTargets(c.Rebalance.Targets); err != nil {
		logger.Warn("Некорректные целевые веса, используются значения по умолчанию", zap.Error(err))
		return DefaultTargets()
	}

	targets := make(map[string]float64, len(c.Rebalance.Targets))
	for asset, fraction := range c.Rebalance.Targets {
		targets[asset] = fraction
	}
	return targets
}
