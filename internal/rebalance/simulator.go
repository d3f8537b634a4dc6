package rebalance

import (
	"math"
	"math/rand"
	"time"

	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// SimStore хранилище результатов симуляции
type SimStore interface {
	SaveSimulation(result *models.SimulationResult) error
}

// Simulator оценивает ребалансировку до исполнения: дрейф весов,
// транзакционные издержки и грубую риск-доходность двух сценариев.
// Это предторговая оценка риска, не прогноз цены.
type Simulator struct {
	config config.RebalanceConfig
	store  SimStore
	rng    *rand.Rand
}

// NewSimulator создает симулятор. rng передается для воспроизводимых
// тестов; nil дает источник со временем в качестве зерна.
func NewSimulator(cfg config.RebalanceConfig, store SimStore, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		config: cfg,
		store:  store,
		rng:    rng,
	}
}

// Drift возвращает дрейф весов: процентные пункты разницы между
// текущим и целевым весом каждого актива, округленные до сотых
func Drift(current, targets map[string]float64) map[string]float64 {
	drift := make(map[string]float64, len(targets))
	for asset := range targets {
		drift[asset] = round2((current[asset] - targets[asset]) * 100)
	}
	// Активы вне целевого набора тоже дрейфуют — к нулевому весу
	for asset, weight := range current {
		if _, ok := targets[asset]; !ok {
			drift[asset] = round2(weight * 100)
		}
	}
	return drift
}

// Simulate строит результат симуляции без сохранения
func (s *Simulator) Simulate(current, targets map[string]float64, portfolioValue float64) *models.SimulationResult {
	drift := Drift(current, targets)

	// Издержки: на каждый актив комиссия и проскальзывание берутся
	// случайно из настроенных диапазонов — моделируется неопределенность
	// исполнения, не детерминированная стоимость. Структурное свойство:
	// издержки растут с величиной дрейфа.
	var txCost float64
	for _, d := range drift {
		notional := portfolioValue * math.Abs(d) / 100
		feeRate := s.draw(s.config.FeeRateMin, s.config.FeeRateMax)
		slippageRate := s.draw(s.config.SlippageRateMin, s.config.SlippageRateMax)
		txCost += notional * (feeRate + slippageRate)
	}

	// Два сценария: бычий и медвежий ход, приложенные равномерно
	// к портфелю в целевых весах
	returns := []float64{s.config.BullScenario, s.config.BearScenario}
	sharpe := sharpeRatio(returns, s.config.RiskFreeRate)

	result := &models.SimulationResult{
		Targets:        copyWeights(targets),
		Drift:          drift,
		TxCostEstimate: txCost,
		SharpeEstimate: sharpe,
		Timestamp:      time.Now(),
	}

	logger.Info("Симуляция ребалансировки",
		zap.Any("drift", drift),
		zap.Float64("tx_cost", txCost),
		zap.Float64("sharpe", sharpe))

	return result
}

// Run выполняет симуляцию и сохраняет результат для оркестратора.
// Каждый запуск пишет новую запись, существующая не изменяется.
func (s *Simulator) Run(current, targets map[string]float64, portfolioValue float64) (*models.SimulationResult, error) {
	result := s.Simulate(current, targets, portfolioValue)
	if err := s.store.SaveSimulation(result); err != nil {
		return nil, err
	}
	return result, nil
}

// draw возвращает случайное значение из [min, max]
func (s *Simulator) draw(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.rng.Float64()*(max-min)
}

// sharpeRatio считает отношение Шарпа по популяционному отклонению.
// При нулевом отклонении возвращает 0, NaN не распространяется.
func sharpeRatio(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stddev := math.Sqrt(variance / float64(len(returns)))

	if stddev == 0 {
		return 0
	}
	return (mean - riskFree) / stddev
}

// round2 округляет до двух знаков
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// copyWeights копирует карту весов: результат не должен делить
// состояние с вызывающим кодом
func copyWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for asset, w := range weights {
		out[asset] = w
	}
	return out
}
