package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/logger"
	"github.com/skalibog/acre/pkg/models"
	"go.uber.org/zap"
)

// quoteAsset актив котировки для оценки портфеля и ордеров
const quoteAsset = "USDT"

// BinanceClient клиент для взаимодействия с Binance.
// Реализует Feed, PortfolioSource и Execution.
type BinanceClient struct {
	spot *binance.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		spotClient.SetApiEndpoint("https://testnet.binance.vision")
	}

	return &BinanceClient{
		spot: spotClient,
	}, nil
}

// FetchSeries получает исторические свечи
func (c *BinanceClient) FetchSeries(ctx context.Context, symbol, interval string, lookback int) ([]*models.Candle, error) {
	var candles []*models.Candle

	err := withRetry(ctx, func(ctx context.Context) error {
		klines, err := c.spot.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(lookback).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка получения свечей: %w", err)
		}

		candles = make([]*models.Candle, len(klines))
		for i, k := range klines {
			candle := &models.Candle{
				Symbol:    symbol,
				Interval:  interval,
				OpenTime:  time.Unix(k.OpenTime/1000, 0),
				Open:      parseFloat(k.Open),
				High:      parseFloat(k.High),
				Low:       parseFloat(k.Low),
				Close:     parseFloat(k.Close),
				Volume:    parseFloat(k.Volume),
				CloseTime: time.Unix(k.CloseTime/1000, 0),
			}
			candles[i] = candle
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return candles, nil
}

// CurrentAllocation строит снимок текущего портфеля по балансу
// спот-аккаунта и текущим ценам
func (c *BinanceClient) CurrentAllocation(ctx context.Context) (*models.CurrentAllocation, error) {
	var account *binance.Account
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		account, err = c.spot.NewGetAccountService().Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка получения аккаунта: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prices, err := c.listPrices(ctx)
	if err != nil {
		return nil, err
	}

	allocation := &models.CurrentAllocation{
		Timestamp: time.Now(),
		Holdings:  make(map[string]models.Holding),
	}

	for _, balance := range account.Balances {
		amount := parseFloat(balance.Free) + parseFloat(balance.Locked)
		if amount == 0 {
			continue
		}

		price := 1.0
		if balance.Asset != quoteAsset {
			var ok bool
			price, ok = prices[balance.Asset+quoteAsset]
			if !ok {
				logger.Debug("Актив без котировки пропущен", zap.String("asset", balance.Asset))
				continue
			}
		}

		valueUSD := amount * price
		allocation.Holdings[balance.Asset] = models.Holding{
			Amount:   amount,
			ValueUSD: valueUSD,
		}
		allocation.TotalUSD += valueUSD
	}

	// Веса рассчитываются после итоговой стоимости
	if allocation.TotalUSD > 0 {
		for asset, holding := range allocation.Holdings {
			holding.Weight = holding.ValueUSD / allocation.TotalUSD
			allocation.Holdings[asset] = holding
		}
	}

	return allocation, nil
}

// Buy покупает актив на заданную сумму котировки
func (c *BinanceClient) Buy(ctx context.Context, asset string, usdAmount float64, opts BuyOptions) error {
	return withRetry(ctx, func(ctx context.Context) error {
		service := c.spot.NewCreateOrderService().
			Symbol(asset + quoteAsset).
			Side(binance.SideTypeBuy).
			Type(binance.OrderTypeMarket).
			QuoteOrderQty(formatAmount(usdAmount))

		_, err := service.Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка покупки %s на %.2f: %w", asset, usdAmount, err)
		}

		logger.Info("Ордер на покупку отправлен",
			zap.String("asset", asset),
			zap.Float64("usd", usdAmount),
			zap.Float64("limit_price", opts.LimitPrice))
		return nil
	})
}

// Sell продает актив на заданную сумму котировки
func (c *BinanceClient) Sell(ctx context.Context, asset string, usdAmount float64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := c.spot.NewCreateOrderService().
			Symbol(asset + quoteAsset).
			Side(binance.SideTypeSell).
			Type(binance.OrderTypeMarket).
			QuoteOrderQty(formatAmount(usdAmount)).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка продажи %s на %.2f: %w", asset, usdAmount, err)
		}

		logger.Info("Ордер на продажу отправлен",
			zap.String("asset", asset),
			zap.Float64("usd", usdAmount))
		return nil
	})
}

// WithdrawCollateral высвобождает залог кредитной позиции.
// Для спот-портфеля сводится к продаже актива в котировку.
func (c *BinanceClient) WithdrawCollateral(ctx context.Context, asset string, usdAmount float64) error {
	logger.Info("Высвобождение залога",
		zap.String("asset", asset),
		zap.Float64("usd", usdAmount))
	return c.Sell(ctx, asset, usdAmount)
}

// listPrices получает текущие цены всех символов
func (c *BinanceClient) listPrices(ctx context.Context) (map[string]float64, error) {
	prices := make(map[string]float64)

	err := withRetry(ctx, func(ctx context.Context) error {
		list, err := c.spot.NewListPricesService().Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка получения цен: %w", err)
		}
		for _, p := range list {
			prices[p.Symbol] = parseFloat(p.Price)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return prices, nil
}

// parseFloat разбирает числовое поле ответа биржи
func parseFloat(raw string) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

// formatAmount форматирует сумму котировки для ордера
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
