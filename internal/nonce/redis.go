package nonce

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "nonce:"

// consumeIfEqual deletes KEYS[1] only while it still holds ARGV[1].
var consumeIfEqual = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore shares nonces between instances. Expiry is delegated to Redis
// key TTLs and Consume is a scripted compare-and-delete, so only one caller
// ever redeems a given value.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps client. A ttl <= 0 falls back to DefaultTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Issue stores a fresh nonce with the store TTL.
func (s *RedisStore) Issue(ctx context.Context, wallet string) (string, error) {
	n, err := Generate()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+wallet, n, s.ttl).Err(); err != nil {
		return "", err
	}
	return n, nil
}

// Peek reads the active nonce.
func (s *RedisStore) Peek(ctx context.Context, wallet string) (string, bool) {
	v, err := s.client.Get(ctx, redisKeyPrefix+wallet).Result()
	if err != nil {
		if err != redis.Nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("nonce peek failed")
		}
		return "", false
	}
	return v, true
}

// Consume atomically deletes the nonce if it still equals want.
func (s *RedisStore) Consume(ctx context.Context, wallet, want string) bool {
	n, err := consumeIfEqual.Run(ctx, s.client, []string{redisKeyPrefix + wallet}, want).Int64()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("nonce consume failed")
		return false
	}
	return n == 1
}
