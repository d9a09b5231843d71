package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes continuation verdicts in Redis, keyed by user and a hash
// of the content that was evaluated. A nil *Cache is a no-op so callers
// never have to check whether Redis is configured.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache connects to Redis at the given URL.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
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

	return NewCacheWithClient(client, ttl), nil
}

// NewCacheWithClient wraps an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		client: client,
		prefix: "continuation:",
		ttl:    ttl,
	}
}

func (c *Cache) key(userID, content string) string {
	sum := sha256.Sum256([]byte(content))
	return c.prefix + userID + ":" + hex.EncodeToString(sum[:16])
}

// Get returns the cached verdict for this user+content, or nil on miss.
func (c *Cache) Get(ctx context.Context, userID, content string) *Continuation {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, c.key(userID, content)).Result()
	if err != nil {
		return nil
	}
	var verdict Continuation
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil
	}
	return &verdict
}

// Put stores a verdict. Failures are swallowed; the cache is advisory.
func (c *Cache) Put(ctx context.Context, userID, content string, verdict Continuation) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(userID, content), raw, c.ttl).Err()
}
