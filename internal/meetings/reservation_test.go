package meetings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalReserver_RejectsOverlap(t *testing.T) {
	r := NewLocalReserver()
	ctx := context.Background()
	start := monday.Add(9 * time.Hour)

	release, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := r.Reserve(ctx, "biz-1", start.Add(15*time.Minute), start.Add(45*time.Minute)); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	other, err := r.Reserve(ctx, "biz-2", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("other business should not conflict: %v", err)
	}
	other()

	release()
	release()
	again, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	again()
}

func newRedisReserver(t *testing.T) (*RedisReserver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReserver(client, time.Minute), mr
}

func TestRedisReserver_RejectsOverlap(t *testing.T) {
	r, mr := newRedisReserver(t)
	ctx := context.Background()
	start := monday.Add(9 * time.Hour)

	release, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	key := reservationKey("biz-1")
	if !mr.Exists(key) {
		t.Fatalf("expected key %s", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	if _, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute)); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict for same window, got %v", err)
	}
	if _, err := r.Reserve(ctx, "biz-1", start.Add(15*time.Minute), start.Add(45*time.Minute)); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict for overlapping window, got %v", err)
	}
	adjacent, err := r.Reserve(ctx, "biz-1", start.Add(30*time.Minute), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("adjacent window should not conflict: %v", err)
	}
	other, err := r.Reserve(ctx, "biz-2", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("other business should not conflict: %v", err)
	}
	other()
	adjacent()

	release()
	release()
	again, err := r.Reserve(ctx, "biz-1", start.Add(15*time.Minute), start.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	again()
	if mr.Exists(key) {
		t.Fatalf("expected no holds left for %s", key)
	}
}

func TestRedisReserver_ExpiredHoldIsIgnored(t *testing.T) {
	r, _ := newRedisReserver(t)
	now := monday
	r.now = func() time.Time { return now }
	ctx := context.Background()
	start := monday.Add(9 * time.Hour)

	if _, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	now = now.Add(2 * time.Minute)
	release, err := r.Reserve(ctx, "biz-1", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("expired hold should not block: %v", err)
	}
	release()
}

func TestRedisReserver_ReleaseKeepsForeignClaim(t *testing.T) {
	r, mr := newRedisReserver(t)
	start := monday.Add(9 * time.Hour)
	release, err := r.Reserve(context.Background(), "biz-1", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	key := reservationKey("biz-1")
	mr.HSet(key, "someone-else", "1:2:99999999999999")
	release()
	if got := mr.HGet(key, "someone-else"); got == "" {
		t.Fatal("foreign claim removed")
	}
	if fields, _ := mr.HKeys(key); len(fields) != 1 {
		t.Fatalf("expected only the foreign claim, got %v", fields)
	}
}
