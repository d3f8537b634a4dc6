package guardrail

import (
	"errors"
	"testing"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryAudit журнал аудита в памяти для тестов
type memoryAudit struct {
	records []models.AuditRecord
}

func (m *memoryAudit) Record(rec models.AuditRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func safeConfig() SafetyConfig {
	return SafetyConfig{
		Env:                 "dev",
		MaxTradeSize:        100,
		MaxDailyExposure:    500,
		ConfidenceThreshold: 60,
	}
}

func TestRealTradingAllowedTruthTable(t *testing.T) {
	// Реальная торговля разрешена ровно в одной из восьми комбинаций
	cases := []struct {
		env         string
		allowLive   bool
		disableReal bool
		want        bool
	}{
		{"dev", false, false, false},
		{"dev", false, true, false},
		{"dev", true, false, false},
		{"dev", true, true, false},
		{"prod", false, false, false},
		{"prod", false, true, false},
		{"prod", true, true, false},
		{"prod", true, false, true},
	}

	for _, tc := range cases {
		gate := NewGate(SafetyConfig{Env: tc.env, AllowLive: tc.allowLive, DisableReal: tc.disableReal}, nil)
		assert.Equalf(t, tc.want, gate.RealTradingAllowed(),
			"env=%s allow_live=%t disable_real=%t", tc.env, tc.allowLive, tc.disableReal)
	}
}

func TestAssertFakeOnly(t *testing.T) {
	gate := NewGate(safeConfig(), nil)
	assert.NoError(t, gate.AssertFakeOnly())

	liveGate := NewGate(SafetyConfig{Env: "prod", AllowLive: true}, nil)
	err := liveGate.AssertFakeOnly()
	require.Error(t, err)

	var violation *Violation
	assert.True(t, errors.As(err, &violation))
}

func TestValidateTradeSize(t *testing.T) {
	audit := &memoryAudit{}
	gate := NewGate(safeConfig(), audit)

	assert.NoError(t, gate.ValidateTradeSize(50))

	err := gate.ValidateTradeSize(150)
	require.Error(t, err)
	var violation *Violation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "validate_trade_size", violation.Check)

	// Обе проверки попали в журнал аудита: сначала успех, затем отказ
	require.Len(t, audit.records, 2)
	assert.True(t, audit.records[0].Pass)
	assert.False(t, audit.records[1].Pass)
	assert.Equal(t, 150.0, audit.records[1].Params["amount"])
}

func TestValidateDailyExposure(t *testing.T) {
	gate := NewGate(safeConfig(), nil)

	assert.NoError(t, gate.ValidateDailyExposure(200, 250))

	err := gate.ValidateDailyExposure(300, 250)
	require.Error(t, err)
	var violation *Violation
	assert.True(t, errors.As(err, &violation))
}

func TestValidateConfidenceIsBoolean(t *testing.T) {
	gate := NewGate(safeConfig(), nil)

	// Бизнес-правило: булев результат, никаких ошибок
	assert.True(t, gate.ValidateConfidence(75))
	assert.True(t, gate.ValidateConfidence(60))
	assert.False(t, gate.ValidateConfidence(59.9))
}

func TestTradingModeNeverLive(t *testing.T) {
	assert.Equal(t, ModeFake, NewGate(safeConfig(), nil).TradingMode())

	// Даже при всех трех флагах максимум SIMULATION
	liveGate := NewGate(SafetyConfig{Env: "prod", AllowLive: true, DisableReal: false}, nil)
	assert.Equal(t, ModeSimulation, liveGate.TradingMode())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("ALLOW_LIVE_EXCHANGE", "true")
	t.Setenv("DISABLE_REAL_EXCHANGES", "false")
	t.Setenv("MAX_TRADE_SIZE", "250")
	t.Setenv("MAX_DAILY_EXPOSURE", "")
	t.Setenv("CONFIDENCE_THRESHOLD", "мусор")

	cfg := FromEnv(config.GuardrailConfig{MaxTradeSize: 100, MaxDailyExposure: 500, ConfidenceThreshold: 60})
	assert.Equal(t, "prod", cfg.Env)
	assert.True(t, cfg.AllowLive)
	assert.False(t, cfg.DisableReal)
	assert.Equal(t, 250.0, cfg.MaxTradeSize)
	assert.Equal(t, 500.0, cfg.MaxDailyExposure)
	// Нечитаемое значение откатывается к конфигурации
	assert.Equal(t, 60.0, cfg.ConfidenceThreshold)
}
