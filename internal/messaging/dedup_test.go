package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDedupStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisDedupStore(client, time.Hour)
	ctx := context.Background()

	first, err := store.MarkSeen(ctx, "SM1")
	if err != nil || !first {
		t.Fatalf("expected first sighting, got %v %v", first, err)
	}
	again, err := store.MarkSeen(ctx, "SM1")
	if err != nil || again {
		t.Fatalf("expected duplicate, got %v %v", again, err)
	}
	if ttl := mr.TTL("dedup:msg:SM1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	mr.FastForward(2 * time.Hour)
	first, err = store.MarkSeen(ctx, "SM1")
	if err != nil || !first {
		t.Fatalf("expected expiry to allow reprocessing, got %v %v", first, err)
	}
}

func TestMemoryDedupStore_Expires(t *testing.T) {
	store := NewMemoryDedupStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if first, _ := store.MarkSeen(ctx, "SM1"); !first {
		t.Fatalf("expected first sighting")
	}
	if first, _ := store.MarkSeen(ctx, "SM1"); first {
		t.Fatalf("expected duplicate")
	}
	now = now.Add(2 * time.Minute)
	if first, _ := store.MarkSeen(ctx, "SM1"); !first {
		t.Fatalf("expected expired marker to be ignored")
	}
}
