package exchange

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/acre/pkg/models"
)

// Feed источник рыночных данных
type Feed interface {
	FetchSeries(ctx context.Context, symbol, interval string, lookback int) ([]*models.Candle, error)
}

// PortfolioSource поставщик снимка текущего портфеля
type PortfolioSource interface {
	CurrentAllocation(ctx context.Context) (*models.CurrentAllocation, error)
}

// BuyOptions опции покупки
type BuyOptions struct {
	LimitPrice     float64 // 0 — рыночная покупка
	MaxSlippagePct float64
}

// Execution исполнение торговых инструкций. Ядро не делает
// предположений о конкретной бирже за этим интерфейсом.
type Execution interface {
	Buy(ctx context.Context, asset string, usdAmount float64, opts BuyOptions) error
	Sell(ctx context.Context, asset string, usdAmount float64) error
	WithdrawCollateral(ctx context.Context, asset string, usdAmount float64) error
}

// Параметры повторов сетевых вызовов
const (
	retryAttempts  = 3
	attemptTimeout = 10 * time.Second
)

// withRetry выполняет сетевой вызов с ограниченным числом повторов
// и таймаутом на каждую попытку
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err = op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
