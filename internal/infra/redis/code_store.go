package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// refreshScript extends a reservation held by ARGV[1], or takes it back when
// it lapsed. It returns 0 when another instance owns the code.
var refreshScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CodeStore reserves join codes in Redis so codes stay unique across
// service instances. Reservations must be refreshed while the session lives;
// the TTL bounds how long a crashed instance can hold one.
type CodeStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
}

func NewCodeStore(client *redis.Client, ttl time.Duration, instance string) *CodeStore {
	if instance == "" {
		instance = "1"
	}
	return &CodeStore{client: client, ttl: ttl, instance: instance}
}

func (s *CodeStore) Reserve(ctx context.Context, code string) (bool, error) {
	return s.client.SetNX(ctx, s.key(code), s.instance, s.ttl).Result()
}

// Refresh extends this instance's reservation of code. It reports false when
// another instance holds the code.
func (s *CodeStore) Refresh(ctx context.Context, code string) (bool, error) {
	n, err := refreshScript.Run(ctx, s.client, []string{s.key(code)}, s.instance, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release frees code only if this instance still owns it.
func (s *CodeStore) Release(ctx context.Context, code string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(code)}, s.instance).Err()
}

// Owner returns the instance holding code, or "" when it is free.
func (s *CodeStore) Owner(ctx context.Context, code string) (string, error) {
	owner, err := s.client.Get(ctx, s.key(code)).Result()
	if isMiss(err) {
		return "", nil
	}
	return owner, err
}

func (s *CodeStore) key(code string) string {
	return "quiz:session:" + code
}
