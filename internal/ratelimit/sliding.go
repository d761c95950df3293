package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript works in unix milliseconds. It trims the log to the window, then admits the request only while
// the log holds fewer than max entries. Rejected requests are not recorded.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest = now
if first[2] then
  oldest = tonumber(first[2])
end
if count >= max then
  return {0, count, oldest}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, oldest}
`)

// SlidingWindow keeps a per-key request log in a Redis sorted set. Checkout
// writes use it since a fixed window lets a client double its burst at the edge.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Take admits one request for key when the trailing window has room.
func (l SlidingWindow) Take(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || !rule.enabled() {
		return rule.open(now), nil
	}
	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.Max, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	oldest := time.UnixMilli(res[2]).In(now.Location())
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     rule.Max,
		Remaining: rule.Max - int(res[1]),
		ResetAt:   oldest.Add(rule.Window),
	}, nil
}
