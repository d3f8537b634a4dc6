package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// PaperFill запись симулированного исполнения
type PaperFill struct {
	Timestamp time.Time
	Asset     string
	Side      models.TradeSide
	AmountUSD float64
	Price     float64
}

// PaperExecution симулированное исполнение: ордера никуда не
// отправляются, все заявки записываются для последующей сверки
type PaperExecution struct {
	mu    sync.Mutex
	fills []PaperFill
}

// NewPaperExecution создает симулированное исполнение
func NewPaperExecution() *PaperExecution {
	return &PaperExecution{}
}

// Buy симулирует покупку
func (p *PaperExecution) Buy(ctx context.Context, asset string, usdAmount float64, opts BuyOptions) error {
	p.record(asset, models.TradeBuy, usdAmount, opts.LimitPrice)
	logger.Info("PAPER: покупка",
		zap.String("asset", asset),
		zap.Float64("usd", usdAmount),
		zap.Float64("limit_price", opts.LimitPrice))
	return nil
}

// Sell симулирует продажу
func (p *PaperExecution) Sell(ctx context.Context, asset string, usdAmount float64) error {
	p.record(asset, models.TradeSell, usdAmount, 0)
	logger.Info("PAPER: продажа",
		zap.String("asset", asset),
		zap.Float64("usd", usdAmount))
	return nil
}

// WithdrawCollateral симулирует высвобождение залога
func (p *PaperExecution) WithdrawCollateral(ctx context.Context, asset string, usdAmount float64) error {
	p.record(asset, models.TradeWithdraw, usdAmount, 0)
	logger.Info("PAPER: высвобождение залога",
		zap.String("asset", asset),
		zap.Float64("usd", usdAmount))
	return nil
}

// Fills возвращает копию записанных исполнений
func (p *PaperExecution) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	fills := make([]PaperFill, len(p.fills))
	copy(fills, p.fills)
	return fills
}

// record сохраняет запись исполнения
func (p *PaperExecution) record(asset string, side models.TradeSide, usdAmount, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills = append(p.fills, PaperFill{
		Timestamp: time.Now(),
		Asset:     asset,
		Side:      side,
		AmountUSD: usdAmount,
		Price:     price,
	})
}
