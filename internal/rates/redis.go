// Package rates provides conversion-rate providers: a Redis-backed cache fed
// by an external calibration job, and a static in-memory provider for tests
// and dry runs. Consumers apply a 1:1 fallback whenever a lookup fails, so
// neither implementation needs to be highly available.
package rates

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Config holds Redis connection parameters for the rate cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisCache implements domain.RateProvider against Redis string keys.
// Supply indexes live at "rate:supply:{asset}", staking rates at
// "rate:stake:{from}:{to}"; both are written by an external calibration job.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects and pings the rate cache.
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("rates: ping redis: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func supplyKey(asset string) string { return "rate:supply:" + asset }

func stakeKey(from, to string) string { return "rate:stake:" + from + ":" + to }

// GetSupplyIndex returns the lending-pool supply index for an asset.
func (c *RedisCache) GetSupplyIndex(ctx context.Context, asset string) (float64, error) {
	return c.get(ctx, supplyKey(asset))
}

// GetStakingRate returns the from->to staking exchange rate.
func (c *RedisCache) GetStakingRate(ctx context.Context, from, to string) (float64, error) {
	return c.get(ctx, stakeKey(from, to))
}

func (c *RedisCache) get(ctx context.Context, key string) (float64, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("rates: %s: %w", key, domain.ErrRateUnavailable)
	}
	if err != nil {
		return 0, fmt.Errorf("rates: get %s: %w", key, err)
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("rates: parse %s=%q: %w", key, val, err)
	}
	return rate, nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.rdb.Close() }
