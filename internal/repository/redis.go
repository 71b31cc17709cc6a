package repository

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/go-redis/redis/v8"
)

// redisKeyPrefix — префикс хешей с последними значениями: spb:{producer}.
const redisKeyPrefix = "spb:"

// RedisSink зеркалирует последние значения метрик в хеши Redis, по одному на производителя.
//
// Поле хеша — имя метрики, значение — строковое представление. Реализует MetricObserver.
type RedisSink struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisSink создаёт sink поверх клиента go-redis.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, timeout: 2 * time.Second}
}

// RedisKey возвращает ключ хеша для производителя.
func RedisKey(producer string) string {
	return redisKeyPrefix + producer
}

// OnMetricUpdate записывает новое значение метрики.
func (s *RedisSink) OnMetricUpdate(update models.MetricUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var value string
	switch v := update.Value.(type) {
	case nil:
		value = "null"
	case []byte:
		value = hex.EncodeToString(v)
	default:
		value = fmt.Sprint(v)
	}
	if err := s.client.HSet(ctx, RedisKey(update.Producer), update.Name, value).Err(); err != nil {
		return fmt.Errorf("failed to mirror metric %s/%s: %w", update.Producer, update.Name, err)
	}
	return nil
}

// Sync перезаписывает хеш производителя текущим содержимым реестра.
func (s *RedisSink) Sync(ctx context.Context, reg *Registry) error {
	metrics := reg.Metrics()
	if len(metrics) == 0 {
		return nil
	}
	values := make(map[string]any, len(metrics))
	for _, m := range metrics {
		values[m.Name] = m.ValueString()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, RedisKey(reg.Producer()))
	pipe.HSet(ctx, RedisKey(reg.Producer()), values)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to sync %s to redis: %w", reg.Producer(), err)
	}
	return nil
}

// Latest возвращает последние значения метрик производителя.
func (s *RedisSink) Latest(ctx context.Context, producer string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, RedisKey(producer)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from redis: %w", producer, err)
	}
	return values, nil
}
