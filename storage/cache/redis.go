// Package cache keeps per-school stats in redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

const keyPrefix = "shule:school:"

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

// StatsCache stores school.Stats as JSON under one key per school.
type StatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ school.StatsCache = (*StatsCache)(nil) // interface compliance check

func NewStatsCache(rdb *redis.Client, ttl time.Duration, logger core.Logger) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl, logger: logger}
}

func statsKey(schoolID string) string {
	return keyPrefix + schoolID + ":stats"
}

// Get reports a miss on any failure.
func (c *StatsCache) Get(ctx context.Context, schoolID string) (school.Stats, bool) {
	raw, err := c.rdb.Get(ctx, statsKey(schoolID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn(fmt.Sprintf("reading cached stats of school %s", schoolID), err)
		}
		return school.Stats{}, false
	}

	var stats school.Stats
	if err = json.Unmarshal(raw, &stats); err != nil {
		c.logger.Warn(fmt.Sprintf("decoding cached stats of school %s", schoolID), err)
		return school.Stats{}, false
	}
	return stats, true
}

func (c *StatsCache) Set(ctx context.Context, schoolID string, stats school.Stats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("encoding stats", errors.Wrap(err, schoolID))
		return
	}
	if err = c.rdb.Set(ctx, statsKey(schoolID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn(fmt.Sprintf("caching stats of school %s", schoolID), err)
	}
}

func (c *StatsCache) Invalidate(ctx context.Context, schoolIDs ...string) {
	if len(schoolIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(schoolIDs))
	for _, id := range schoolIDs {
		keys = append(keys, statsKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("invalidating cached stats", err, map[string]interface{}{"school_ids": schoolIDs})
	}
}

// Ping checks that redis is reachable.
func (c *StatsCache) Ping(ctx context.Context) error {
	return errors.Wrap(c.rdb.Ping(ctx).Err(), "pinging redis")
}
