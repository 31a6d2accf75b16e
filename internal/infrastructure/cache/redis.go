package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnquangdev/meeting-transcriber/pkg/config"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisMeetingLock enforces one session per meeting across API replicas
type RedisMeetingLock struct {
	client redis.UniversalClient
}

// NewRedisMeetingLock creates a lock on client
func NewRedisMeetingLock(client redis.UniversalClient) *RedisMeetingLock {
	return &RedisMeetingLock{client: client}
}

// Acquire takes the meeting for holder with SET NX PX
func (l *RedisMeetingLock) Acquire(ctx context.Context, meetingID, holder string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, meetingLockKey(meetingID), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire meeting lock: %w", err)
	}
	return ok, nil
}

// Refresh extends the lease if holder still owns it
func (l *RedisMeetingLock) Refresh(ctx context.Context, meetingID, holder string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{meetingLockKey(meetingID)}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh meeting lock: %w", err)
	}
	return n == 1, nil
}

// Release frees the meeting if holder still owns it
func (l *RedisMeetingLock) Release(ctx context.Context, meetingID, holder string) error {
	if err := releaseScript.Run(ctx, l.client, []string{meetingLockKey(meetingID)}, holder).Err(); err != nil {
		return fmt.Errorf("failed to release meeting lock: %w", err)
	}
	return nil
}
