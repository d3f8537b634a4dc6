package exchange

import (
	"context"
	"time"

	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// CandleSink приемник собранных свечей
type CandleSink interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
}

// DataCollector фоновый сборщик рыночных данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// CandleCollector периодически снимает свечи по списку символов
// и складывает их в хранилище
type CandleCollector struct {
	feed     Feed
	sink     CandleSink
	symbols  []string
	interval string
	lookback int
	stop     chan struct{}
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(feed Feed, sink CandleSink, symbols []string, interval string, lookback int) *CandleCollector {
	return &CandleCollector{
		feed:     feed,
		sink:     sink,
		symbols:  symbols,
		interval: interval,
		lookback: lookback,
		stop:     make(chan struct{}),
	}
}

// Start запускает цикл сбора. Блокируется до отмены контекста
// или вызова Stop.
func (c *CandleCollector) Start(ctx context.Context) error {
	// Первый проход сразу, чтобы анализ не ждал целый интервал
	c.collect(ctx)

	ticker := time.NewTicker(getIntervalDuration(c.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		}
	}
}

// Stop останавливает цикл сбора
func (c *CandleCollector) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// collect один проход сбора по всем символам.
// Отказ по одному символу не прерывает остальные.
func (c *CandleCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		candles, err := c.feed.FetchSeries(ctx, symbol, c.interval, c.lookback)
		if err != nil {
			logger.Warn("Не удалось получить свечи",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		if err := c.sink.SaveCandles(ctx, candles); err != nil {
			logger.Warn("Не удалось сохранить свечи",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		logger.Debug("Свечи собраны",
			zap.String("symbol", symbol), zap.Int("count", len(candles)))
	}
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
