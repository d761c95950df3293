package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const articleKeyPrefix = "catalog:article:"

// Cache keeps serialized articles in Redis under catalog:article:<id>. The zero
// value and a nil *Cache are valid and never hit.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCache returns a cache writing entries with ttl. A nil client disables it.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return &Cache{ttl: ttl}
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) off() bool { return c == nil || c.rdb == nil }

// Load returns the cached article for id and whether it was present.
func (c *Cache) Load(ctx context.Context, id string) (Article, bool, error) {
	if c.off() || id == "" {
		return Article{}, false, nil
	}
	raw, err := c.rdb.Get(ctx, articleKeyPrefix+id).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return Article{}, false, nil
	case err != nil:
		return Article{}, false, err
	}
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		// drop entries written by an incompatible build
		_ = c.rdb.Del(ctx, articleKeyPrefix+id).Err()
		return Article{}, false, err
	}
	return a, true, nil
}

// Save stores a under its own ID.
func (c *Cache) Save(ctx context.Context, a Article) error {
	if c.off() || a.ID == "" {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, articleKeyPrefix+a.ID, raw, c.ttl).Err()
}

// Forget evicts the given article IDs.
func (c *Cache) Forget(ctx context.Context, ids ...string) error {
	if c.off() || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = articleKeyPrefix + id
	}
	return c.rdb.Del(ctx, keys...).Err()
}
