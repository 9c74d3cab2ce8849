package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"iot-forecast/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	devicesKey  = "devices"
	sequenceKey = "readings:seq"
	anomalyKey  = "anomalies"
)

func readingsKey(deviceID string) string {
	return "readings:" + deviceID
}

func deviceAnomalyKey(deviceID string) string {
	return "anomalies:" + deviceID
}

// RedisStore журнал показаний в Redis.
//
// Показания устройства хранятся в sorted set с весом = время показания в микросекундах.
// Член множества начинается с остатка наносекунд внутри микросекунды, затем идет
// порядковый номер записи. При равных весах ZREVRANGE сначала упорядочивает по остатку,
// а при полностью равном времени возвращает позже записанное показание первым.
// Глобальный список аномалий ограничен тем же maxPerDevice, что и журнал устройства.
type RedisStore struct {
	client       *redis.Client
	maxPerDevice int64
}

// NewRedisStore создает журнал и проверяет подключение к Redis
func NewRedisStore(ctx context.Context, addr, password string, db int, maxPerDevice int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, maxPerDevice), nil
}

// NewRedisStoreFromClient оборачивает готовый клиент
func NewRedisStoreFromClient(client *redis.Client, maxPerDevice int) *RedisStore {
	return &RedisStore{
		client:       client,
		maxPerDevice: int64(maxPerDevice),
	}
}

// Append добавляет запись в журнал устройства
func (s *RedisStore) Append(ctx context.Context, rec models.Record) error {
	if rec.DeviceID == "" {
		return fmt.Errorf("record without device_id")
	}
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("record without timestamp")
	}
	rec.Timestamp = rec.Timestamp.UTC()

	seq, err := s.client.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	member, err := encodeMember(seq, rec)
	if err != nil {
		return err
	}
	z := redis.Z{Score: scoreOf(rec.Timestamp), Member: member}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, readingsKey(rec.DeviceID), z)
	pipe.SAdd(ctx, devicesKey, rec.DeviceID)
	if s.maxPerDevice > 0 {
		pipe.ZRemRangeByRank(ctx, readingsKey(rec.DeviceID), 0, -(s.maxPerDevice + 1))
	}
	if rec.IsAnomaly {
		pipe.ZAdd(ctx, anomalyKey, z)
		pipe.ZAdd(ctx, deviceAnomalyKey(rec.DeviceID), z)
		if s.maxPerDevice > 0 {
			pipe.ZRemRangeByRank(ctx, deviceAnomalyKey(rec.DeviceID), 0, -(s.maxPerDevice + 1))
			pipe.ZRemRangeByRank(ctx, anomalyKey, 0, -(s.maxPerDevice + 1))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}
	return nil
}

// Recent возвращает до limit последних показаний устройства, новые первыми.
// Для неизвестного устройства возвращается пустой срез без ошибки.
func (s *RedisStore) Recent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error) {
	records, err := s.RecentRecords(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}

	readings := make([]models.Reading, len(records))
	for i, rec := range records {
		readings[i] = rec.Reading
	}
	return readings, nil
}

// RecentRecords как Recent, но вместе с флагами аномалий и алертами
func (s *RedisStore) RecentRecords(ctx context.Context, deviceID string, limit int) ([]models.Record, error) {
	return s.rangeDesc(ctx, readingsKey(deviceID), limit)
}

// Anomalies возвращает последние записи с флагом аномалии.
// Пустой deviceID означает все устройства.
func (s *RedisStore) Anomalies(ctx context.Context, deviceID string, limit int) ([]models.Record, error) {
	key := anomalyKey
	if deviceID != "" {
		key = deviceAnomalyKey(deviceID)
	}
	return s.rangeDesc(ctx, key, limit)
}

// Devices возвращает отсортированный список известных устройств
func (s *RedisStore) Devices(ctx context.Context) ([]string, error) {
	devices, err := s.client.SMembers(ctx, devicesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	sort.Strings(devices)
	return devices, nil
}

func (s *RedisStore) rangeDesc(ctx context.Context, key string, limit int) ([]models.Record, error) {
	if limit <= 0 {
		return []models.Record{}, nil
	}

	members, err := s.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	records := make([]models.Record, 0, len(members))
	for _, m := range members {
		rec, err := decodeMember(m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping проверяет доступность Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetStats возвращает статистику пула соединений
func (s *RedisStore) GetStats() map[string]interface{} {
	stats := s.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

func scoreOf(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func encodeMember(seq int64, rec models.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reading: %w", err)
	}
	return fmt.Sprintf("%03d|%020d|%s", rec.Timestamp.Nanosecond()%1000, seq, data), nil
}

func decodeMember(member string) (models.Record, error) {
	var rec models.Record
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return rec, fmt.Errorf("malformed log entry %q", member)
	}
	if err := json.Unmarshal([]byte(parts[2]), &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	return rec, nil
}
