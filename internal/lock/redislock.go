package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld reports that the lease expired or was taken over before the holder
// finished. It is also the cause on the callback context when renewal fails.
var ErrNotHeld = errors.New("lock: not held")

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("DEL", KEYS[1])`)
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
)

// Locker hands out exclusive Redis leases keyed by name. It is shared by the API
// and the worker so a Stripe session or an outbound event is handled once.
type Locker struct {
	R *redis.Client
	// Retry is the pause between acquisition attempts.
	Retry time.Duration
}

// WithLock blocks until key is free or ctx ends, then runs fn holding the lease.
// The lease is renewed every ttl/3 while fn runs and released afterwards.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go l.renew(runCtx, key, token, ttl, cancel, done)

	fnErr := fn(runCtx)
	cancel(nil)
	<-done

	relErr := l.release(context.WithoutCancel(ctx), key, token)
	if fnErr != nil {
		return fnErr
	}
	return relErr
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	wait := l.Retry
	if wait <= 0 {
		wait = defaultRetry
	}
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		t.Reset(wait)
	}
}

func (l Locker) renew(ctx context.Context, key, token string, ttl time.Duration, lost context.CancelCauseFunc, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(ttl / 3)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
		if ctx.Err() != nil {
			return
		}
		if err == nil && n == 0 {
			lost(ErrNotHeld)
			return
		}
		// transient errors are retried on the next tick while the TTL still covers us
	}
}

func (l Locker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.R, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
