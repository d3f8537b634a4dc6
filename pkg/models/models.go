package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// RegimeLabel представляет рыночный режим
type RegimeLabel string

// Режимы рынка: комбинация наличия тренда и уровня волатильности
const (
	RegimeTrendingCalm     RegimeLabel = "trending_calm"
	RegimeTrendingVolatile RegimeLabel = "trending_volatile"
	RegimeChoppyCalm       RegimeLabel = "choppy_calm"
	RegimeChoppyVolatile   RegimeLabel = "choppy_volatile"
	RegimeUnknown          RegimeLabel = "unknown"
)

// SignalKind представляет тип сигнала
type SignalKind string

const (
	SignalBuy     SignalKind = "BUY"
	SignalSell    SignalKind = "SELL"
	SignalNeutral SignalKind = "NEUTRAL"
	SignalHold    SignalKind = "HOLD"
)

// ExitReason представляет причину выхода из позиции
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitSignal     ExitReason = "SIGNAL_EXIT"
)

// Signal представляет результат работы стратегии
type Signal struct {
	Symbol     string
	Strategy   string
	Timestamp  time.Time
	Kind       SignalKind
	Confidence float64 // 0-100, эвристическая сила сигнала, не вероятность
	Price      float64 // 0, если цена не определена
	Reasoning  string
	ExitReason ExitReason // заполняется только для SELL
	PnlPercent float64    // заполняется для SELL и HOLD
}

// PositionSizing представляет расчет размера позиции
type PositionSizing struct {
	PositionValueUSD float64
	Quantity         float64
	StopLossPrice    float64
	TakeProfitPrice  float64
}

// Holding представляет позицию в портфеле
type Holding struct {
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"value_usd"`
	Weight   float64 `json:"weight"`
}

// CurrentAllocation представляет снимок текущего портфеля
type CurrentAllocation struct {
	Timestamp time.Time          `json:"timestamp"`
	TotalUSD  float64            `json:"total_usd"`
	Holdings  map[string]Holding `json:"holdings"`
}

// Weights возвращает веса активов портфеля
func (a *CurrentAllocation) Weights() map[string]float64 {
	weights := make(map[string]float64, len(a.Holdings))
	for asset, h := range a.Holdings {
		weights[asset] = h.Weight
	}
	return weights
}

// SimulationResult представляет результат симуляции ребалансировки
type SimulationResult struct {
	Targets        map[string]float64 `json:"targets"`
	Drift          map[string]float64 `json:"drift"`
	TxCostEstimate float64            `json:"tx_cost_estimate"`
	SharpeEstimate float64            `json:"sharpe_estimate"`
	Timestamp      time.Time          `json:"timestamp"`
}

// TradeSide представляет направление сделки
type TradeSide string

const (
	TradeSell     TradeSide = "SELL"
	TradeBuy      TradeSide = "BUY"
	TradeWithdraw TradeSide = "WITHDRAW"
)

// TradeInstruction представляет инструкцию для исполнения
type TradeInstruction struct {
	Asset     string
	Side      TradeSide
	AmountUSD float64
	Tranches  int     // >1 включает лестничный вход
	Step      float64 // максимальное смещение цены лестницы, в долях
}

// LedgerRecord представляет запись журнала ребалансировок
type LedgerRecord struct {
	Timestamp time.Time          `json:"timestamp"`
	Env       string             `json:"env"`
	RealMode  bool               `json:"real_mode"`
	Targets   map[string]float64 `json:"targets"`
	Drift     map[string]float64 `json:"drift"`
	Deviant   []string           `json:"deviant,omitempty"`
}

// AuditRecord представляет запись проверки guardrail
type AuditRecord struct {
	Timestamp time.Time          `json:"timestamp"`
	Check     string             `json:"check"`
	Pass      bool               `json:"pass"`
	Params    map[string]float64 `json:"params,omitempty"`
	Detail    string             `json:"detail,omitempty"`
}
