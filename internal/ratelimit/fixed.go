package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window limiter on top of a ulule/limiter store. The public
// promotion preview endpoint uses it to slow down code enumeration.
type Fixed struct {
	Store limiter.Store
}

// NewFixedRedis builds a Fixed limiter sharing the application Redis client.
func NewFixedRedis(rdb *redis.Client, prefix string) (Fixed, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Fixed{}, err
	}
	return Fixed{Store: store}, nil
}

// Take counts one request for key in the current window.
func (f Fixed) Take(ctx context.Context, key string, rule Rule) (Decision, error) {
	if f.Store == nil || !rule.enabled() {
		return rule.open(time.Now()), nil
	}
	lim := limiter.New(f.Store, limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
