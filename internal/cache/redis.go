// Package cache provides a Redis read-through cache for rendered documents.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

// DefaultTTL bounds how stale a cached document may get if an invalidation is lost.
const DefaultTTL = 5 * time.Minute

type entry struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// setIfGeneration stores ARGV[2] under KEYS[1] only while the generation
// counter in KEYS[2] still equals ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// DocumentCache stores current documents keyed by configuration key. Every
// invalidation bumps a per-key generation; a document read before the bump
// is never written back.
type DocumentCache struct {
	client    *redis.Client
	prefix    string
	genPrefix string
	ttl       time.Duration
}

// NewDocumentCache connects to redisURL and verifies the connection.
func NewDocumentCache(ctx context.Context, redisURL string, ttl time.Duration) (*DocumentCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DocumentCache{client: client, prefix: "sitecfg:doc:", genPrefix: "sitecfg:gen:", ttl: ttl}
}

func (c *DocumentCache) key(k string) string { return c.prefix + k }
func (c *DocumentCache) genKey(k string) string { return c.genPrefix + k }

// Get returns the cached document of key; ok is false on a miss.
func (c *DocumentCache) Get(ctx context.Context, key string) (doc *model.Document, ok bool, err error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	v, err := tree.Parse(e.Value)
	if err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &model.Document{Key: key, Value: v, UpdatedAt: e.UpdatedAt}, true, nil
}

// Generation returns the invalidation counter of key, zero if it was never
// invalidated. Read it before loading the document passed to Set.
func (c *DocumentCache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// Set caches doc under its key unless the key was invalidated after gen was
// read. stored reports whether the entry was written.
func (c *DocumentCache) Set(ctx context.Context, doc *model.Document, gen int64) (stored bool, err error) {
	v, err := doc.Value.MarshalJSON()
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(entry{Value: v, UpdatedAt: doc.UpdatedAt})
	if err != nil {
		return false, fmt.Errorf("cache encode: %w", err)
	}
	n, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(doc.Key), c.genKey(doc.Key)},
		strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache set: %w", err)
	}
	return n == 1, nil
}

// Invalidate drops the cached document of key and bumps its generation.
func (c *DocumentCache) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(key))
		pipe.Incr(ctx, c.genKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *DocumentCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Close closes the Redis connection.
func (c *DocumentCache) Close() error { return c.client.Close() }
