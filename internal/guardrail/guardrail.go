package guardrail

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// Mode представляет режим торговли
type Mode string

const (
	// ModeFake все действия только на бумаге
	ModeFake Mode = "FAKE"
	// ModeSimulation реальные биржи разрешены, но исполнение остается
	// симуляцией: переход к живому исполнению — отдельное ручное действие,
	// этот модуль его никогда не включает сам
	ModeSimulation Mode = "SIMULATION"
)

// Violation представляет нарушение защитной проверки.
// Всегда блокирует действие и всегда попадает в журнал.
type Violation struct {
	Check  string
	Detail string
}

// Error реализует интерфейс error
func (v *Violation) Error() string {
	return fmt.Sprintf("guardrail: %s: %s", v.Check, v.Detail)
}

// Audit интерфейс журнала защитных проверок
type Audit interface {
	Record(rec models.AuditRecord) error
}

// SafetyConfig иммутабельный снимок флагов окружения и порогов.
// Собирается на границе процесса перед каждым использованием и
// никогда не кэшируется в долгоживущих объектах: любой флаг может
// измениться между вызовами.
type SafetyConfig struct {
	Env                 string
	AllowLive           bool
	DisableReal         bool
	MaxTradeSize        float64
	MaxDailyExposure    float64
	ConfidenceThreshold float64
}

// FromEnv строит SafetyConfig из переменных окружения.
// Числовые пороги берутся из окружения, при отсутствии — из конфигурации.
func FromEnv(defaults config.GuardrailConfig) SafetyConfig {
	return SafetyConfig{
		Env:                 os.Getenv("ENV"),
		AllowLive:           envBool("ALLOW_LIVE_EXCHANGE"),
		DisableReal:         envBool("DISABLE_REAL_EXCHANGES"),
		MaxTradeSize:        envFloat("MAX_TRADE_SIZE", defaults.MaxTradeSize),
		MaxDailyExposure:    envFloat("MAX_DAILY_EXPOSURE", defaults.MaxDailyExposure),
		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", defaults.ConfidenceThreshold),
	}
}

// envBool читает булеву переменную окружения, нечитаемое значение дает false
func envBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return value
}

// envFloat читает числовую переменную окружения с запасным значением
func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("Нечитаемое числовое значение в окружении, используется значение из конфигурации",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return value
}

// Gate защитный шлюз: решает, может ли действие коснуться реального
// капитала, и проверяет пороги размера сделки, дневной экспозиции
// и уверенности сигнала
type Gate struct {
	config SafetyConfig
	audit  Audit
}

// NewGate создает шлюз для одного снимка SafetyConfig
func NewGate(cfg SafetyConfig, audit Audit) *Gate {
	return &Gate{
		config: cfg,
		audit:  audit,
	}
}

// RealTradingAllowed сообщает, разрешена ли работа с реальным капиталом.
// Требуются все три условия одновременно: изменение любого одного флага
// не может случайно включить реальную торговлю.
func (g *Gate) RealTradingAllowed() bool {
	allowed := g.allowed()
	g.record("real_trading_allowed", allowed, map[string]float64{}, fmt.Sprintf(
		"env=%s allow_live=%t disable_real=%t", g.config.Env, g.config.AllowLive, g.config.DisableReal))
	return allowed
}

// AssertFakeOnly защищает пути, которые никогда не должны касаться
// реального капитала
func (g *Gate) AssertFakeOnly() error {
	if g.allowed() {
		violation := &Violation{
			Check:  "assert_fake_only",
			Detail: "путь выполняется при разрешенной реальной торговле",
		}
		g.record(violation.Check, false, nil, violation.Detail)
		return violation
	}
	g.record("assert_fake_only", true, nil, "")
	return nil
}

// ValidateTradeSize проверяет размер одной сделки против потолка
func (g *Gate) ValidateTradeSize(amount float64) error {
	params := map[string]float64{"amount": amount, "max_trade_size": g.config.MaxTradeSize}
	if amount > g.config.MaxTradeSize {
		violation := &Violation{
			Check:  "validate_trade_size",
			Detail: fmt.Sprintf("сделка %.2f превышает потолок %.2f", amount, g.config.MaxTradeSize),
		}
		g.record(violation.Check, false, params, violation.Detail)
		return violation
	}
	g.record("validate_trade_size", true, params, "")
	return nil
}

// ValidateDailyExposure проверяет суммарную дневную экспозицию
func (g *Gate) ValidateDailyExposure(proposed, existing float64) error {
	params := map[string]float64{
		"proposed": proposed, "existing": existing, "max_daily_exposure": g.config.MaxDailyExposure,
	}
	if proposed+existing > g.config.MaxDailyExposure {
		violation := &Violation{
			Check: "validate_daily_exposure",
			Detail: fmt.Sprintf("экспозиция %.2f+%.2f превышает дневной потолок %.2f",
				existing, proposed, g.config.MaxDailyExposure),
		}
		g.record(violation.Check, false, params, violation.Detail)
		return violation
	}
	g.record("validate_daily_exposure", true, params, "")
	return nil
}

// ValidateConfidence проверяет уверенность сигнала против порога.
// Это бизнес-правило, а не нарушение безопасности: возвращается
// булев результат, не ошибка.
func (g *Gate) ValidateConfidence(confidence float64) bool {
	pass := confidence >= g.config.ConfidenceThreshold
	g.record("validate_confidence", pass, map[string]float64{
		"confidence": confidence, "threshold": g.config.ConfidenceThreshold,
	}, "")
	return pass
}

// TradingMode возвращает режим торговли. LIVE отсюда не возвращается
// никогда: эскалация к живому исполнению — явное отдельное действие
// оператора за пределами этого модуля.
func (g *Gate) TradingMode() Mode {
	if g.allowed() {
		return ModeSimulation
	}
	return ModeFake
}

// Safety возвращает снимок конфигурации, с которым построен шлюз
func (g *Gate) Safety() SafetyConfig {
	return g.config
}

// allowed вычисляет разрешение заново при каждом вызове
func (g *Gate) allowed() bool {
	return g.config.Env == "prod" && g.config.AllowLive && !g.config.DisableReal
}

// record пишет результат проверки в журнал аудита и лог.
// Отказ журнала сообщается, но никогда не прерывает проверку.
func (g *Gate) record(check string, pass bool, params map[string]float64, detail string) {
	if pass {
		logger.Debug("Проверка guardrail пройдена", zap.String("check", check), zap.Any("params", params))
	} else {
		logger.Warn("Проверка guardrail не пройдена",
			zap.String("check", check), zap.Any("params", params), zap.String("detail", detail))
	}

	if g.audit == nil {
		return
	}
	err := g.audit.Record(models.AuditRecord{
		Timestamp: time.Now(),
		Check:     check,
		Pass:      pass,
		Params:    params,
		Detail:    detail,
	})
	if err != nil {
		logger.Error("Не удалось записать проверку в журнал аудита", zap.Error(err))
	}
}
