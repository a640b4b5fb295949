package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript checks both caps and increments both counters in one step.
// Returns {allowed, techCount, systemCount}; counts are the values before the
// increment when denied and after it when allowed.
var reserveScript = redis.NewScript(`
local tech = tonumber(redis.call('GET', KEYS[1]) or '0')
local sys = tonumber(redis.call('GET', KEYS[2]) or '0')
if tech >= tonumber(ARGV[1]) or sys >= tonumber(ARGV[2]) then
	return {0, tech, sys}
end
tech = redis.call('INCR', KEYS[1])
sys = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return {1, tech, sys}
`)

var releaseScript = redis.NewScript(`
for i = 1, #KEYS do
	local v = tonumber(redis.call('GET', KEYS[i]) or '0')
	if v > 0 then
		redis.call('DECR', KEYS[i])
	end
end
return 1
`)

type RedisLimiter struct {
	client *redis.Client
	limits Limits
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limits Limits) *RedisLimiter {
	return &RedisLimiter{client: client, limits: limits, now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, technicianID string) (Decision, error) {
	now := l.now()
	vals, err := l.client.MGet(ctx, technicianKey(technicianID, now), systemKey(now)).Result()
	if err != nil {
		return Decision{}, err
	}
	return decide(l.limits, toInt(vals[0]), toInt(vals[1])), nil
}

func (l *RedisLimiter) Reserve(ctx context.Context, technicianID string) (Decision, error) {
	now := l.now()
	// one hour of slack past midnight so late releases still find the key
	ttl := nextMidnight(now).Add(time.Hour).Sub(now).Milliseconds()
	res, err := reserveScript.Run(ctx, l.client,
		[]string{technicianKey(technicianID, now), systemKey(now)},
		l.limits.PerTechnician, l.limits.SystemWide, ttl).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, errors.New("ratelimit: unexpected script reply")
	}
	if res[0] == 1 {
		return Decision{Allowed: true, TechnicianCount: int(res[1]), SystemCount: int(res[2])}, nil
	}
	return decide(l.limits, int(res[1]), int(res[2])), nil
}

func (l *RedisLimiter) Release(ctx context.Context, technicianID string) error {
	now := l.now()
	return releaseScript.Run(ctx, l.client, []string{technicianKey(technicianID, now), systemKey(now)}).Err()
}

func toInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
