package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy guards calls to an external dependency with a breaker, a per-attempt timeout
// and exponential retries.
type Policy struct {
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Timeout     time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// Do runs fn under the policy. Errors that are not retryable end the loop and do not
// count against the breaker.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Breaker != nil && !p.Breaker.Allow(ctx) {
			p.observe("rejected")
			if lastErr != nil {
				return errors.Join(ErrOpenCircuit, lastErr)
			}
			return ErrOpenCircuit
		}
		err := p.once(ctx, fn)
		if err == nil {
			p.report(ctx, true)
			p.observe("ok")
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			// the dependency answered, so it counts as healthy
			p.report(ctx, true)
			p.observe("permanent")
			return err
		}
		p.report(ctx, false)
		p.observe("error")
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(p.BaseBackoff, attempt, p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p Policy) once(ctx context.Context, fn func(context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}

func (p Policy) report(ctx context.Context, ok bool) {
	if p.Breaker != nil {
		p.Breaker.Report(ctx, ok)
	}
}

func (p Policy) observe(result string) {
	if CallAttempts == nil {
		return
	}
	target := "default"
	if p.Breaker != nil {
		target = p.Breaker.target
	}
	CallAttempts.WithLabelValues(target, result).Inc()
}

// Backoff returns base doubled per attempt after the first, spread by ±jitter
// (0.2 is 20%). The exponent stops growing after 16 attempts.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(max(attempt, 1)-1, 16)
	d := base << shift
	if jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * jitter * float64(d))
	}
	return d
}
