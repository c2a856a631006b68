package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "posture:report:"

// ReportCache stores finished reports in redis keyed by upload content hash and mode.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to redis and verifies the connection with a PING.
func New(ctx context.Context, cfg config.RedisConfig) (*ReportCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &ReportCache{rdb: rdb, ttl: cfg.TTL}, nil
}

// Key builds the cache key for a content hash analysed in mode m.
func Key(contentHash string, m posture.Mode) string {
	return keyPrefix + contentHash + ":" + m.String()
}

// Get returns the cached report. A miss is (Report{}, false, nil).
func (c *ReportCache) Get(ctx context.Context, key string) (posture.Report, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return posture.Report{}, false, nil
	}
	if err != nil {
		return posture.Report{}, false, err
	}

	var report posture.Report
	if err := json.Unmarshal(val, &report); err != nil {
		return posture.Report{}, false, fmt.Errorf("decode cached report %s: %w", key, err)
	}
	return report, true, nil
}

// Set stores report under key for the configured TTL. A zero TTL keeps it forever.
func (c *ReportCache) Set(ctx context.Context, key string, report posture.Report) error {
	val, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, val, c.ttl).Err()
}

func (c *ReportCache) Close() error {
	return c.rdb.Close()
}
