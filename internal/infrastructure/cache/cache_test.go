package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ms.Set("k", "v", 20*time.Millisecond)
	if v, ok := ms.Get("k"); !ok || v != "v" {
		t.Fatalf("expected v got %q %v", v, ok)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := ms.Get("k"); ok {
		t.Fatalf("expected key to expire")
	}
	if !ms.SetNX("k", "w", time.Minute) {
		t.Fatalf("SetNX should succeed on an expired key")
	}
}

func TestMemoryMeetingLock(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	lock := NewMemoryMeetingLock(ms)
	ctx := context.Background()

	ok, _ := lock.Acquire(ctx, "m1", "s1", time.Minute)
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if ok, _ := lock.Acquire(ctx, "m1", "s2", time.Minute); ok {
		t.Fatalf("second holder must not acquire")
	}
	if ok, _ := lock.Refresh(ctx, "m1", "s2", time.Minute); ok {
		t.Fatalf("non-holder must not refresh")
	}
	if ok, _ := lock.Refresh(ctx, "m1", "s1", time.Minute); !ok {
		t.Fatalf("holder should refresh")
	}
	_ = lock.Release(ctx, "m1", "s2")
	if ok, _ := lock.Acquire(ctx, "m1", "s2", time.Minute); ok {
		t.Fatalf("release by non-holder must be ignored")
	}
	_ = lock.Release(ctx, "m1", "s1")
	if ok, _ := lock.Acquire(ctx, "m1", "s2", time.Minute); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestRedisMeetingLock(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	lock := NewRedisMeetingLock(client)
	ctx := context.Background()
	meeting := "test-" + time.Now().Format("150405.000000")

	ok, err := lock.Acquire(ctx, meeting, "s1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}
	defer lock.Release(ctx, meeting, "s1")

	if ok, _ := lock.Acquire(ctx, meeting, "s2", time.Minute); ok {
		t.Fatalf("second holder must not acquire")
	}
	if ok, err := lock.Refresh(ctx, meeting, "s1", time.Minute); err != nil || !ok {
		t.Fatalf("refresh: %v %v", ok, err)
	}
	if ok, _ := lock.Refresh(ctx, meeting, "s2", time.Minute); ok {
		t.Fatalf("non-holder must not refresh")
	}
}
