package embedpool

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(RedisCacheConfig{Client: client})
}

func TestRedisCacheMissThenHit(t *testing.T) {
	cache := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "deadbeef"); ok {
		t.Fatal("expected a miss before any Set")
	}

	want := []float32{0.1, -0.2, 3.5}
	cache.Set(ctx, "deadbeef", want)

	got, ok := cache.Get(ctx, "deadbeef")
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if len(got) != len(want) {
		t.Fatalf("round-tripped vector length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round-tripped vector mismatch at %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestRedisCacheDistinctHashesIsolated(t *testing.T) {
	cache := newTestRedisCache(t)
	ctx := context.Background()

	cache.Set(ctx, "hash-a", []float32{1})
	cache.Set(ctx, "hash-b", []float32{2})

	a, _ := cache.Get(ctx, "hash-a")
	b, _ := cache.Get(ctx, "hash-b")
	if a[0] == b[0] {
		t.Fatal("expected distinct content hashes to map to distinct cache entries")
	}
}
