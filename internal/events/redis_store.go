package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultProcessedTTL covers Meta's redelivery window.
const DefaultProcessedTTL = 48 * time.Hour

// RedisProcessedStore marks events with SET NX and a TTL.
type RedisProcessedStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Deduper = (*RedisProcessedStore)(nil)

func NewRedisProcessedStore(client *redis.Client, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &RedisProcessedStore{client: client, ttl: ttl}
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, processedKey(provider, eventID), time.Now().UTC().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

func (s *RedisProcessedStore) Forget(ctx context.Context, provider, eventID string) error {
	if err := s.client.Del(ctx, processedKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: forget processed: %w", err)
	}
	return nil
}

func processedKey(provider, eventID string) string {
	return fmt.Sprintf("guestpilot:processed:%s:%s", provider, eventID)
}

// MemoryProcessedStore is a process-local Deduper with lazy expiry.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ Deduper = (*MemoryProcessedStore)(nil)

func NewMemoryProcessedStore(ttl time.Duration) *MemoryProcessedStore {
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &MemoryProcessedStore{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}
	key := processedKey(provider, eventID)
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryProcessedStore) Forget(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, processedKey(provider, eventID))
	return nil
}
