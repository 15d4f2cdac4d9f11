package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventDeduper claims webhook event ids with SET NX so a delivery
// retried by the provider is applied once.
type RedisEventDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisEventDeduper returns nil when rdb is nil so callers can pass the
// result straight to NewPayments.
func NewRedisEventDeduper(rdb *redis.Client, ttl time.Duration) EventDeduper {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisEventDeduper{rdb: rdb, ttl: ttl, prefix: "webhook:event:"}
}

func (d *RedisEventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+eventID, 1, d.ttl).Result()
}

func (d *RedisEventDeduper) Release(ctx context.Context, eventID string) {
	_ = d.rdb.Del(ctx, d.prefix+eventID).Err()
}
