package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/acre/internal/config"
	"github.com/skalibog/acre/pkg/models"
)

// MarketStore интерфейс хранилища рыночных данных
type MarketStore interface {
	// Методы для свечей
	SaveCandle(ctx context.Context, candle *models.Candle) error
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)

	// Методы для сигналов и режимов
	SaveSignal(ctx context.Context, signal *models.Signal) error
	SaveRegime(ctx context.Context, symbol string, regime models.RegimeLabel, at time.Time) error

	Close()
}

// InfluxDBStorage реализует MarketStore с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandle сохраняет свечу в базу данных
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	s.writeAPI.WritePoint(candlePoint(candle))
	s.writeAPI.Flush()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		s.writeAPI.WritePoint(candlePoint(candle))
	}
	s.writeAPI.Flush()
	return nil
}

// candlePoint строит точку InfluxDB для свечи
func candlePoint(candle *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
}

// GetCandles получает исторические свечи, упорядоченные по времени
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	// Формируем Flux-запрос: последние limit свечей в хронологическом порядке
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"])
	`, s.bucket, symbol, interval, limit)

	// Выполняем запрос
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	// Обрабатываем результаты
	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		// Извлекаем поля
		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candle := &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(getIntervalDuration(interval)),
		}

		candles = append(candles, candle)
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveSignal сохраняет сигнал стратегии
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":   signal.Symbol,
			"strategy": signal.Strategy,
		},
		map[string]interface{}{
			"kind":       string(signal.Kind),
			"confidence": signal.Confidence,
			"price":      signal.Price,
			"reasoning":  signal.Reasoning,
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveRegime сохраняет результат классификации режима
func (s *InfluxDBStorage) SaveRegime(ctx context.Context, symbol string, regime models.RegimeLabel, at time.Time) error {
	point := influxdb2.NewPoint(
		"regimes",
		map[string]string{
			"symbol": symbol,
		},
		map[string]interface{}{
			"regime": string(regime),
		},
		at,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
