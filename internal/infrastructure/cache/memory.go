package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a simple in-memory key-value store with expiration.
// Used for closed-session tombstones and single-node meeting locks.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	stop  chan struct{}
	once  sync.Once
}

type memoryItem struct {
	value      string
	expireTime time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return now.After(i.expireTime)
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		items: make(map[string]*memoryItem),
		stop:  make(chan struct{}),
	}

	go store.cleanupExpired(time.Minute)

	return store
}

// Set stores a key-value pair with expiration
func (ms *MemoryStore) Set(key string, value string, expiration time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.items[key] = &memoryItem{
		value:      value,
		expireTime: time.Now().Add(expiration),
	}
}

// SetNX stores the pair only when key is absent or expired
func (ms *MemoryStore) SetNX(key string, value string, expiration time.Duration) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	if item, exists := ms.items[key]; exists && !item.expired(now) {
		return false
	}
	ms.items[key] = &memoryItem{value: value, expireTime: now.Add(expiration)}
	return true
}

// Get retrieves a value by key (returns empty string if not found or expired)
func (ms *MemoryStore) Get(key string) (string, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, exists := ms.items[key]
	if !exists || item.expired(time.Now()) {
		return "", false
	}
	return item.value, true
}

// CompareAndExpire extends key's expiration if it still holds value
func (ms *MemoryStore) CompareAndExpire(key, value string, expiration time.Duration) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	item, exists := ms.items[key]
	if !exists || item.expired(now) || item.value != value {
		return false
	}
	item.expireTime = now.Add(expiration)
	return true
}

// CompareAndDelete removes key if it still holds value
func (ms *MemoryStore) CompareAndDelete(key, value string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[key]
	if !exists || item.value != value {
		return false
	}
	delete(ms.items, key)
	return true
}

// Delete removes a key
func (ms *MemoryStore) Delete(key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.items, key)
}

// Close stops the cleanup goroutine
func (ms *MemoryStore) Close() {
	ms.once.Do(func() { close(ms.stop) })
}

// cleanupExpired periodically removes expired items
func (ms *MemoryStore) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
		}
		ms.mu.Lock()
		now := time.Now()
		for key, item := range ms.items {
			if item.expired(now) {
				delete(ms.items, key)
			}
		}
		ms.mu.Unlock()
	}
}

// MemoryMeetingLock enforces one session per meeting inside one process
type MemoryMeetingLock struct {
	store *MemoryStore
}

// NewMemoryMeetingLock creates a lock backed by store
func NewMemoryMeetingLock(store *MemoryStore) *MemoryMeetingLock {
	return &MemoryMeetingLock{store: store}
}

// Acquire takes the meeting for holder
func (l *MemoryMeetingLock) Acquire(_ context.Context, meetingID, holder string, ttl time.Duration) (bool, error) {
	return l.store.SetNX(meetingLockKey(meetingID), holder, ttl), nil
}

// Refresh extends the lease if holder still owns it
func (l *MemoryMeetingLock) Refresh(_ context.Context, meetingID, holder string, ttl time.Duration) (bool, error) {
	return l.store.CompareAndExpire(meetingLockKey(meetingID), holder, ttl), nil
}

// Release frees the meeting if holder still owns it
func (l *MemoryMeetingLock) Release(_ context.Context, meetingID, holder string) error {
	l.store.CompareAndDelete(meetingLockKey(meetingID), holder)
	return nil
}

func meetingLockKey(meetingID string) string {
	return "meeting-lock:" + meetingID
}
