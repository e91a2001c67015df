package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MangaEntry is a cached resolution of a client manga id
type MangaEntry struct {
	HID   string `json:"hid"`
	Title string `json:"title"`
}

// Cache wraps the Redis client used for manga id resolution
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache client
func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &Cache{client: client, ttl: ttl}, nil
}

// GenerateMangaKey generates a consistent cache key for a client manga id
func (c *Cache) GenerateMangaKey(id string) string {
	id = strings.TrimSpace(id)
	hash := sha256.Sum256([]byte(id))
	return fmt.Sprintf("manga:%x", hash[:8])
}

// GetManga returns the cached resolution of id. A miss is not an error.
func (c *Cache) GetManga(ctx context.Context, id string) (*MangaEntry, bool, error) {
	key := c.GenerateMangaKey(id)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var entry MangaEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.HID == "" {
		// Invalid data format, delete and return miss
		c.client.Del(ctx, key)
		return nil, false, nil
	}

	return &entry, true, nil
}

// SetManga stores the resolution of id
func (c *Cache) SetManga(ctx context.Context, id string, entry MangaEntry) error {
	key := c.GenerateMangaKey(id)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health returns cache health information
func (c *Cache) Health(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = size
	}

	return health
}
