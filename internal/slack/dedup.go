package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix  = "nest:slack:event:" // nest:slack:event:{event_id}
	defaultDedupTTL = time.Hour
)

// Deduper remembers which event ids were already handled.
type Deduper interface {
	// Seen marks id as handled and reports whether it had been seen before.
	Seen(ctx context.Context, id string) (bool, error)
}

// RedisDeduper keeps event ids in Redis so that every replica shares them.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a RedisDeduper. A zero ttl defaults to one hour.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, eventKeyPrefix+id, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event %s: %w", id, err)
	}
	return !fresh, nil
}

// MemoryDeduper keeps event ids in process memory.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper. A zero ttl defaults to one hour.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, expires := range d.seen {
		if now.After(expires) {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[id]; ok {
		return true, nil
	}
	d.seen[id] = now.Add(d.ttl)
	return false, nil
}
