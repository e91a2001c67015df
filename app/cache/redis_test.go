package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestGenerateMangaKey(t *testing.T) {
	cache := &Cache{}

	key1a := cache.GenerateMangaKey("12345")
	key1b := cache.GenerateMangaKey(" 12345 ")
	key2 := cache.GenerateMangaKey("67890")

	if key1a != key1b {
		t.Errorf("Expected same key for same id, got %s != %s", key1a, key1b)
	}

	if key1a == key2 {
		t.Errorf("Expected different keys for different ids, but got same: %s", key1a)
	}

	if !strings.HasPrefix(key1a, "manga:") {
		t.Errorf("Expected key to start with manga:, got %s", key1a)
	}
}

func TestNewCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 is never a Redis server
	_, err := NewCache(ctx, "127.0.0.1:1", time.Minute)
	if err == nil {
		t.Error("Expected error connecting to unreachable Redis")
	}
}
