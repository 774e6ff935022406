package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"codequest/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	srv := miniredis.RunT(t)
	return cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
}

func TestRedisCacheBasicOps(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	if got, err := c.Get(ctx, "missing"); err != nil || got != "" {
		t.Fatalf("missing key should be empty, got %q err %v", got, err)
	}

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, err := c.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("get returned %q err %v", got, err)
	}

	ok, err := c.SetNX(ctx, "k", "other", time.Minute)
	if err != nil {
		t.Fatalf("setnx failed: %v", err)
	}
	if ok {
		t.Fatalf("setnx must not overwrite existing key")
	}
	ok, err = c.SetNX(ctx, "fresh", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("setnx on fresh key failed: ok=%v err=%v", ok, err)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if got, _ := c.Get(ctx, "k"); got != "" {
		t.Fatalf("deleted key should be empty, got %q", got)
	}
}

func TestGetWithCachedNullCaching(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	var fetches int64
	fetch := func(context.Context) (string, error) {
		atomic.AddInt64(&fetches, 1)
		return "", nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.GetWithCached[string](
			ctx, c, "challenge:404",
			time.Minute, time.Minute,
			func(s string) bool { return s == "" },
			func(s string) string { return s },
			func(s string) (string, error) { return s, nil },
			fetch,
		)
		if err != nil {
			t.Fatalf("get with cached failed: %v", err)
		}
		if got != "" {
			t.Fatalf("expected empty result, got %q", got)
		}
	}

	if n := atomic.LoadInt64(&fetches); n != 1 {
		t.Fatalf("absence should be cached after first miss, fetched %d times", n)
	}
}

func TestGetWithCachedServesFromCache(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	var fetches int64
	fetch := func(context.Context) (string, error) {
		atomic.AddInt64(&fetches, 1)
		return "payload", nil
	}

	for i := 0; i < 5; i++ {
		got, err := cache.GetWithCached[string](
			ctx, c, "challenge:1",
			time.Minute, time.Minute,
			func(s string) bool { return s == "" },
			func(s string) string { return s },
			func(s string) (string, error) { return s, nil },
			fetch,
		)
		if err != nil || got != "payload" {
			t.Fatalf("expected payload, got %q err %v", got, err)
		}
	}

	if n := atomic.LoadInt64(&fetches); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestJitterTTL(t *testing.T) {
	t.Parallel()

	ttl := time.Hour
	for i := 0; i < 100; i++ {
		jittered := cache.JitterTTL(ttl)
		if jittered > ttl || jittered < ttl-ttl/10 {
			t.Fatalf("jittered ttl %s outside [54m, 1h]", jittered)
		}
	}
	if cache.JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must pass through")
	}
}
