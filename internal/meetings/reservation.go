package meetings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/leadqual-platform/internal/availability"
)

// SlotReserver holds a short-lived claim on a business time window while a
// booking is checked and committed. A claim conflicts with any other live
// claim of the same business whose window overlaps it.
type SlotReserver interface {
	Reserve(ctx context.Context, businessID string, start, end time.Time) (release func(), err error)
}

func reservationKey(businessID string) string {
	return "meetings:holds:" + businessID
}

// LocalReserver rejects any reservation overlapping one already held for the
// same business.
type LocalReserver struct {
	mu   sync.Mutex
	held map[string]map[string]availability.Interval
}

func NewLocalReserver() *LocalReserver {
	return &LocalReserver{held: make(map[string]map[string]availability.Interval)}
}

func (r *LocalReserver) Reserve(ctx context.Context, businessID string, start, end time.Time) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := availability.Interval{Start: start, End: end}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, iv := range r.held[businessID] {
		if iv.Overlaps(want) {
			return nil, ErrSlotConflict
		}
	}
	if r.held[businessID] == nil {
		r.held[businessID] = make(map[string]availability.Interval)
	}
	token := uuid.New().String()
	r.held[businessID][token] = want

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held[businessID], token)
			if len(r.held[businessID]) == 0 {
				delete(r.held, businessID)
			}
			r.mu.Unlock()
		})
	}, nil
}

// reserveScript stores each hold as a hash field "start:end:expires" (unix
// ms), drops expired holds, and refuses the claim when a live one overlaps.
// ARGV: token, start, end, now, expires, ttl ms.
var reserveScript = redis.NewScript(`
local held = redis.call("HGETALL", KEYS[1])
local now = tonumber(ARGV[4])
local wantStart = tonumber(ARGV[2])
local wantEnd = tonumber(ARGV[3])
for i = 1, #held, 2 do
	local s, e, exp = string.match(held[i + 1], "^(%d+):(%d+):(%d+)$")
	if s == nil or tonumber(exp) <= now then
		redis.call("HDEL", KEYS[1], held[i])
	elseif tonumber(s) < wantEnd and wantStart < tonumber(e) then
		return 0
	end
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2] .. ":" .. ARGV[3] .. ":" .. ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return 1
`)

// RedisReserver keeps every hold of a business in one hash so overlap is
// checked atomically across processes. Each hold carries its own expiry so a
// crashed booking cannot keep a window forever.
type RedisReserver struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisReserver(client redis.Cmdable, ttl time.Duration) *RedisReserver {
	if client == nil {
		panic("meetings: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisReserver{client: client, ttl: ttl, now: time.Now}
}

func (r *RedisReserver) Reserve(ctx context.Context, businessID string, start, end time.Time) (func(), error) {
	key := reservationKey(businessID)
	token := uuid.New().String()
	now := r.now()
	ok, err := reserveScript.Run(ctx, r.client, []string{key},
		token,
		start.UnixMilli(),
		end.UnixMilli(),
		now.UnixMilli(),
		now.Add(r.ttl).UnixMilli(),
		r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("meetings: reserve slot: %w", err)
	}
	if ok == 0 {
		return nil, ErrSlotConflict
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = r.client.HDel(releaseCtx, key, token).Err()
		})
	}, nil
}
