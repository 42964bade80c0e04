package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// brokenStore fails every call, like an unreachable Redis.
type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errDown
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}

func (brokenStore) Del(context.Context, ...string) error {
	return errDown
}

func (brokenStore) Ping(context.Context) error {
	return errDown
}

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errDown
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newMemService() (*Service, *MemoryStore, *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clk.now
	svc := New(store, time.Second)
	svc.now = clk.now
	return svc, store, clk
}

func TestGetCached_HitAfterMiss(t *testing.T) {
	svc, _, _ := newMemService()
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	v, err := GetCached(ctx, svc, "k", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, v)

	v, err = GetCached(ctx, svc, "k", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, v)
	require.Equal(t, 1, calls, "second read must be served from cache")
}

func TestGetCached_ExpiresAfterTTL(t *testing.T) {
	svc, _, clk := newMemService()
	ctx := context.Background()

	n := 0
	compute := func(context.Context) (int, error) { n++; return n, nil }

	v, _ := GetCached(ctx, svc, "k", time.Minute, compute)
	require.Equal(t, 1, v)
	clk.t = clk.t.Add(time.Minute)
	v, _ = GetCached(ctx, svc, "k", time.Minute, compute)
	require.Equal(t, 2, v, "entry must not outlive its TTL")
}

func TestGetCached_RecomputeErrorNotCached(t *testing.T) {
	svc, store, _ := newMemService()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := GetCached(ctx, svc, "k", time.Minute, func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestGetCached_TransparentWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	for name, svc := range map[string]*Service{
		"disabled": New(nil, 0),
		"broken":   New(brokenStore{}, 0),
	} {
		calls := 0
		for i := 0; i < 3; i++ {
			v, err := GetCached(ctx, svc, "k", time.Minute, func(context.Context) (string, error) {
				calls++
				return "fresh", nil
			})
			require.NoError(t, err, name)
			require.Equal(t, "fresh", v, name)
		}
		require.Equal(t, 3, calls, "%s: every call recomputes", name)
	}
}

func TestGetCached_DropsUndecodableEntry(t *testing.T) {
	svc, store, _ := newMemService()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("{not json"), time.Minute))

	v, err := GetCached(ctx, svc, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestInvalidate(t *testing.T) {
	svc, _, _ := newMemService()
	ctx := context.Background()
	n := 0
	compute := func(context.Context) (int, error) { n++; return n, nil }

	_, _ = GetCached(ctx, svc, "k", time.Hour, compute)
	svc.Invalidate(ctx, "k")
	svc.Invalidate(ctx, "missing")
	v, _ := GetCached(ctx, svc, "k", time.Hour, compute)
	require.Equal(t, 2, v)

	// No panic and no error surface without a store.
	New(nil, 0).Invalidate(ctx, "k")
	New(brokenStore{}, 0).Invalidate(ctx, "k")
}

func TestCheckRateLimit_Boundary(t *testing.T) {
	svc, _, clk := newMemService()
	ctx := context.Background()
	const max = 5
	window := 60 * time.Second

	for i := 1; i <= max; i++ {
		res := svc.CheckRateLimit(ctx, "image:u1", max, window)
		require.True(t, res.Allowed, "call %d", i)
		require.Equal(t, max-i, res.Remaining)
	}
	res := svc.CheckRateLimit(ctx, "image:u1", max, window)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.True(t, res.ResetAt.After(clk.t))
	require.Equal(t, 60, res.RetryAfter(clk.t))

	// Other identifiers are independent.
	require.True(t, svc.CheckRateLimit(ctx, "image:u2", max, window).Allowed)

	clk.t = clk.t.Add(window)
	res = svc.CheckRateLimit(ctx, "image:u1", max, window)
	require.True(t, res.Allowed, "new window starts fresh")
	require.Equal(t, max-1, res.Remaining)
}

func TestCheckRateLimit_FailOpen(t *testing.T) {
	ctx := context.Background()
	for _, svc := range []*Service{New(nil, 0), New(brokenStore{}, 0)} {
		for i := 0; i < 20; i++ {
			res := svc.CheckRateLimit(ctx, "x", 5, time.Minute)
			require.True(t, res.Allowed)
			require.Equal(t, 5, res.Remaining)
		}
	}
}

func TestRetryAfter_RoundsUp(t *testing.T) {
	now := time.Now()
	require.Equal(t, 2, RateLimit{ResetAt: now.Add(1500 * time.Millisecond)}.RetryAfter(now))
	require.Equal(t, 1, RateLimit{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "disabled", New(nil, 0).Health(ctx))
	require.Equal(t, "down", New(brokenStore{}, 0).Health(ctx))
	require.Equal(t, "ok", New(NewMemoryStore(), 0).Health(ctx))
}

func newMiniRedis(t *testing.T) (*Service, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(NewRedisStore(client), time.Second), client, mr
}

func TestRedisStore_GetCachedAndInvalidate(t *testing.T) {
	svc, _, mr := newMiniRedis(t)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (map[string]int, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}
	v, err := GetCached(ctx, svc, "board:top", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, 1, v["n"])
	require.Equal(t, time.Minute, mr.TTL("board:top"))

	v, err = GetCached(ctx, svc, "board:top", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, 1, v["n"], "second read is served from redis")
	require.Equal(t, 1, calls)

	svc.Invalidate(ctx, "board:top")
	require.False(t, mr.Exists("board:top"))
	v, err = GetCached(ctx, svc, "board:top", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, 2, v["n"])

	// Undecodable entries are recomputed and overwritten.
	require.NoError(t, mr.Set("board:top", "{not json"))
	v, err = GetCached(ctx, svc, "board:top", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, 3, v["n"])
}

func TestRedisStore_CheckRateLimitWindow(t *testing.T) {
	svc, _, mr := newMiniRedis(t)
	ctx := context.Background()
	const max = 3
	window := time.Minute

	for i := 1; i <= max; i++ {
		res := svc.CheckRateLimit(ctx, "auth:ip:1.2.3.4", max, window)
		require.True(t, res.Allowed, "call %d", i)
		require.Equal(t, max-i, res.Remaining)
	}
	res := svc.CheckRateLimit(ctx, "auth:ip:1.2.3.4", max, window)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.Equal(t, 60, res.RetryAfter(time.Now()))

	// The script starts the expiry on the first hit and leaves it alone
	// afterwards.
	require.Equal(t, window, mr.TTL("ratelimit:auth:ip:1.2.3.4"))
	got, err := mr.Get("ratelimit:auth:ip:1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, "4", got)

	mr.FastForward(window)
	require.False(t, mr.Exists("ratelimit:auth:ip:1.2.3.4"))
	res = svc.CheckRateLimit(ctx, "auth:ip:1.2.3.4", max, window)
	require.True(t, res.Allowed, "new window starts fresh")
	require.Equal(t, max-1, res.Remaining)
}

func TestRedisStore_IncrRepairsMissingTTL(t *testing.T) {
	_, client, mr := newMiniRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client)

	// A counter left behind without an expiry.
	require.NoError(t, mr.Set("ratelimit:stuck", "7"))
	count, ttl, err := store.Incr(ctx, "ratelimit:stuck", 30*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 8, count)
	require.Equal(t, 30*time.Second, ttl)
	require.Equal(t, 30*time.Second, mr.TTL("ratelimit:stuck"))
}

func TestRedisStore_FailsOpenWhenServerGoes(t *testing.T) {
	svc, _, mr := newMiniRedis(t)
	ctx := context.Background()
	require.Equal(t, "ok", svc.Health(ctx))
	require.False(t, svc.CheckRateLimit(ctx, "x", 0, time.Minute).Allowed)

	mr.Close()
	require.Equal(t, "down", svc.Health(ctx))
	for i := 0; i < 5; i++ {
		res := svc.CheckRateLimit(ctx, "x", 0, time.Minute)
		require.True(t, res.Allowed)
	}
	calls := 0
	v, err := GetCached(ctx, svc, "k", time.Minute, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)
	svc.Invalidate(ctx, "k")
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	svc, client, err := Connect(ctx, "", time.Second)
	require.NoError(t, err)
	require.Nil(t, client)
	require.Equal(t, "ok", svc.Health(ctx), "no url runs on the in-process store")
	require.True(t, svc.CheckRateLimit(ctx, "a", 1, time.Minute).Allowed)
	require.False(t, svc.CheckRateLimit(ctx, "a", 1, time.Minute).Allowed)

	mr := miniredis.RunT(t)
	svc, client, err = Connect(ctx, "redis://"+mr.Addr(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, client)
	liveClient := client
	t.Cleanup(func() { _ = liveClient.Close() })
	require.True(t, svc.CheckRateLimit(ctx, "b", 1, time.Minute).Allowed)
	require.True(t, mr.Exists("ratelimit:b"))

	addr := mr.Addr()
	mr.Close()
	svc, client, err = Connect(ctx, "redis://"+addr, time.Second)
	require.Error(t, err)
	require.Nil(t, client)
	require.Equal(t, "ok", svc.Health(ctx), "unreachable redis falls back to memory")

	_, _, err = Connect(ctx, "::not a url", time.Second)
	require.Error(t, err)
}

// TestRedisStore_Live runs against a real server when REDIS_URL is set.
func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	key := "test:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(ctx, key, "ratelimit:"+key) })

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)
	require.NoError(t, store.Set(ctx, key, []byte(`"v"`), time.Minute))
	b, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `"v"`, string(b))

	svc := New(store, time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, svc.CheckRateLimit(ctx, key, 3, time.Minute).Allowed)
	}
	res := svc.CheckRateLimit(ctx, key, 3, time.Minute)
	require.False(t, res.Allowed)

	ttl, err := client.PTTL(ctx, "ratelimit:"+key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.Equal(t, redis.Nil, client.Get(ctx, "absent:"+key).Err())
}
