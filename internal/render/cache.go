package render

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores fetched render images in Redis, keyed by the deterministic
// fetch URL. Misses and Redis failures are both just misses: the cache is
// an optimization, never a source of truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultCacheTTL = time.Hour

// NewCache connects to Redis at redisURL.
func NewCache(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: defaultCacheTTL}, nil
}

// NewCacheWithClient creates a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultCacheTTL}
}

func (c *Cache) key(format Format, imageURL string) string {
	sum := sha1.Sum([]byte(imageURL))
	return "render:" + string(format) + ":" + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, format Format, imageURL string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.key(format, imageURL)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("render: cache get: %v", err)
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) Put(ctx context.Context, format Format, imageURL string, data []byte) {
	if err := c.client.Set(ctx, c.key(format, imageURL), data, c.ttl).Err(); err != nil {
		log.Printf("render: cache put: %v", err)
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}
