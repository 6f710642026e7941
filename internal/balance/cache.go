package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Cache wraps Redis based ledger caching with per-tenant versioning.
// Writers bump the tenant's version instead of enumerating keys; stale
// entries age out via TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client degrades to
// pass-through loading.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(tenant shared.TenantID) string {
	return fmt.Sprintf("balance:version:%d", tenant)
}

// Version returns the tenant's current cache version, initialising when
// missing.
func (c *Cache) Version(ctx context.Context, tenant shared.TenantID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(tenant)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(tenant), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key scoped by tenant and version.
func (c *Cache) BuildKey(ctx context.Context, tenant shared.TenantID, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, tenant)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("balance:%d:%s:%d", tenant, joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. The
// loader runs at most once per key across concurrent callers.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	raw, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			return nil, err
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Bump invalidates every cached ledger of the tenant by incrementing its
// version.
func (c *Cache) Bump(ctx context.Context, tenant shared.TenantID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(tenant)).Err()
}

func roundTrip(value, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
