package sharedstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowAdmitScript implements spec.md §4.D's shared algorithm as a
// single atomic Lua script: trim expired members, read cardinality, admit
// or reject, refresh TTL on success.
const slidingWindowAdmitScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[4]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[5])
return 1
`

// reserveBudgetScript implements spec.md §4.E's shared reserve: compare
// the running total against max, increment only if the reservation fits,
// and refresh the 48-hour TTL on every call (not just on success) so an
// active day's key never expires mid-traffic.
const reserveBudgetScript = `
local total = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
if total + n > max then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
  return {total, 0}
end
local newTotal = redis.call('INCRBY', KEYS[1], n)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {newTotal, 1}
`

// commitBudgetScript applies the reserve/release delta to the total key
// and the actual usage to the per-tool key as one transaction.
const commitBudgetScript = `
redis.call('INCRBY', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('INCRBY', KEYS[2], ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`

// RedisStore implements Store against github.com/redis/go-redis/v9. All
// read-modify-write sequences run as server-side Lua scripts via EVAL, per
// spec.md §4.F ("never client-side sequences of get/set").
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore dials addr with a bounded connect timeout and pings once;
// a failure returns Disabled so the caller logs one warning and proceeds
// with local-only rate limiting and budgeting.
func NewRedisStore(ctx context.Context, addr, prefix string, connectTimeout time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	opts.DialTimeout = connectTimeout
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, Disabled
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisStore) SlidingWindowAdmit(ctx context.Context, key string, cutoff, nowScore float64, member string, limit int, ttl time.Duration) (bool, error) {
	res, err := r.client.Eval(ctx, slidingWindowAdmitScript, []string{key}, cutoff, nowScore, member, limit, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, err
	}
	admitted, _ := res.(int64)
	return admitted == 1, nil
}

func (r *RedisStore) ReserveBudget(ctx context.Context, key string, n, max int64, ttl time.Duration) (int64, bool, error) {
	res, err := r.client.Eval(ctx, reserveBudgetScript, []string{key}, n, max, int64(ttl.Seconds())).Result()
	if err != nil {
		return 0, false, err
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, false, nil
	}
	total, _ := pair[0].(int64)
	admitted, _ := pair[1].(int64)
	return total, admitted == 1, nil
}

func (r *RedisStore) CommitBudget(ctx context.Context, totalKey, perToolKey string, delta, actual int64, ttl time.Duration) error {
	return r.client.Eval(ctx, commitBudgetScript, []string{totalKey, perToolKey}, delta, actual, int64(ttl.Seconds())).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
