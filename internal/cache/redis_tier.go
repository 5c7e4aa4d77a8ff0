package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ortho-cohortgen/internal/domain"
)

const keyPrefix = "cohortgen:dataset:"

// RedisTier is the shared second cache tier. Calls go through a circuit
// breaker so an unreachable Redis degrades to memory-only caching.
type RedisTier struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewRedisTier connects to the Redis instance at cfg.RedisURL.
func NewRedisTier(cfg domain.CacheConfig, logger *logrus.Logger) (*RedisTier, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, domain.NewConfigurationError("cache.redis_url", err.Error())
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return newRedisTier(redis.NewClient(opts), logger), nil
}

func newRedisTier(client *redis.Client, logger *logrus.Logger) *RedisTier {
	t := &RedisTier{client: client, logger: logger}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-dataset-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker changed state")
		},
	})
	return t
}

// Ping checks connectivity.
func (t *RedisTier) Ping(ctx context.Context) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.client.Ping(ctx).Err()
	})
	return err
}

// Get returns the dataset stored under key. A missing key is not an error.
func (t *RedisTier) Get(ctx context.Context, key string) ([]domain.CaseRecord, bool, error) {
	raw, err := t.breaker.Execute(func() (interface{}, error) {
		data, err := t.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	data, _ := raw.([]byte)
	if data == nil {
		return nil, false, nil
	}

	var records []domain.CaseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached dataset %s: %w", key, err)
	}
	return records, true, nil
}

// Set stores records under key for ttl.
func (t *RedisTier) Set(ctx context.Context, key string, records []domain.CaseRecord, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s: %w", key, err)
	}
	_, err = t.breaker.Execute(func() (interface{}, error) {
		return nil, t.client.Set(ctx, keyPrefix+key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.client.Del(ctx, keyPrefix+key).Err()
	})
	return err
}

// State reports the circuit breaker state.
func (t *RedisTier) State() gobreaker.State {
	return t.breaker.State()
}

// Close releases the connection pool.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
