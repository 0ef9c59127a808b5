package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers provider message ids so redeliveries are dropped.
type DedupStore interface {
	// MarkSeen records id and reports whether this is its first sighting.
	MarkSeen(ctx context.Context, id string) (bool, error)
}

func dedupKey(id string) string {
	return "dedup:msg:" + id
}

// RedisDedupStore keeps dedup markers in Redis with a TTL.
type RedisDedupStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDedupStore(client redis.Cmdable, ttl time.Duration) *RedisDedupStore {
	if client == nil {
		panic("messaging: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedupStore{client: client, ttl: ttl}
}

func (s *RedisDedupStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	first, err := s.client.SetNX(ctx, dedupKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("messaging: dedup %s: %w", id, err)
	}
	return first, nil
}

// MemoryDedupStore is a process-local DedupStore.
type MemoryDedupStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDedupStore(ttl time.Duration) *MemoryDedupStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDedupStore{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryDedupStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = now.Add(s.ttl)
	return true, nil
}
