// Package cache keeps the read-mostly menu reference data (categories,
// subjects, teachers) in Redis in front of the database.
package cache

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"studybot/db"
)

const refTTL = 5 * time.Minute

// Loader is the fallback source of reference data.
type Loader interface {
	Refs(dim string) ([]db.Ref, error)
}

type Cache struct {
	client *redis.Client
	loader Loader
	logger *zap.SugaredLogger
}

func New(addr string, loader Loader, logger *zap.SugaredLogger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping().Result(); err != nil {
		return nil, errors.Wrap(err, "failed pinging redis")
	}

	return &Cache{client: client, loader: loader, logger: logger}, nil
}

// Refs serves the reference list read-through: a cache miss or a broken
// cache falls back to the loader, and a fresh copy is written back with a
// TTL. Cache trouble is logged, never surfaced.
func (c *Cache) Refs(dim string) ([]db.Ref, error) {
	key := "refs:" + dim

	raw, err := c.client.Get(key).Result()
	switch {
	case err == redis.Nil:
		// miss
	case err != nil:
		c.logger.Warnw("cache read failed", "key", key, "err", err)
	default:
		var refs []db.Ref
		if err := json.Unmarshal([]byte(raw), &refs); err == nil {
			return refs, nil
		}
		c.logger.Warnw("cache entry corrupted", "key", key)
	}

	refs, err := c.loader.Refs(dim)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(refs); err == nil {
		if err := c.client.Set(key, data, refTTL).Err(); err != nil {
			c.logger.Warnw("cache write failed", "key", key, "err", err)
		}
	}

	return refs, nil
}

// Invalidate drops the cached list of one dimension, e.g. after an upload
// created a new category.
func (c *Cache) Invalidate(dim string) {
	if err := c.client.Del("refs:" + dim).Err(); err != nil {
		c.logger.Warnw("cache invalidation failed", "dim", dim, "err", err)
	}
}
