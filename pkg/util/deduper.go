package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper is a Redis SETNX guard against concurrent duplicate consumption of
// the same unit of work across worker processes.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + entity id.
// Returns true if this is the first time processing, false on a duplicate.
// If Redis is unavailable it allows processing: the storage-level claim is
// the real gate, this is only an optimization.
func (d *Deduper) AcquireOnce(ctx context.Context, handler, entityID string) bool {
	key := fmt.Sprintf("dedup:%s:%s", handler, entityID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated job",
			zap.String("handler", handler),
			zap.String("entity_id", entityID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release drops the dedup lock so the next delivery for the same entity can
// run. Handlers whose retry transport is nack+requeue must release after
// every attempt, or the redelivery would be swallowed as a duplicate.
func (d *Deduper) Release(ctx context.Context, handler, entityID string) {
	key := fmt.Sprintf("dedup:%s:%s", handler, entityID)
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup lock, waiting out the TTL",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}
