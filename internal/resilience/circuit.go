package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position. The numeric values are exported as a gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker trips on the failure ratio of calls to one dependency. Closed counts
// are cleared every cool-off period so old failures do not linger. Once the
// cool-off has passed an open breaker admits a single probe, and that probe's
// outcome closes or reopens it.
type Breaker struct {
	target      string
	minRequests int
	ratio       float64
	coolOff     time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	mu          sync.Mutex
	state       State
	ok, failed  int
	windowStart time.Time
	openedAt    time.Time
	probeAt     time.Time
}

// NewBreaker builds a breaker for target. It opens once minRequests calls were
// seen in the current window and at least failureRatio of them failed.
func NewBreaker(target string, minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	b := &Breaker{
		target:      strings.TrimSpace(target),
		minRequests: max(minRequests, 1),
		ratio:       min(failureRatio, 1),
		coolOff:     openFor,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	if b.ratio <= 0 {
		b.ratio = 0.5
	}
	if b.coolOff <= 0 {
		b.coolOff = 30 * time.Second
	}
	if b.target == "" {
		b.target = "default"
	}
	b.windowStart = b.now()
	b.publish()
	return b
}

// WithLogger sets the logger used for transitions.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Callers that were allowed must
// Report the outcome.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case Closed:
		if now.Sub(b.windowStart) >= b.coolOff {
			b.ok, b.failed, b.windowStart = 0, 0, now
		}
		return true
	case Open:
		if now.Sub(b.openedAt) < b.coolOff {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probeAt = now
		return true
	default:
		// a probe that never reported is replaced after another cool-off
		if now.Sub(b.probeAt) >= b.coolOff {
			b.probeAt = now
			return true
		}
		return false
	}
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
	case Closed:
		if success {
			b.ok++
			return
		}
		b.failed++
		total := b.ok + b.failed
		if total >= b.minRequests && float64(b.failed) >= b.ratio*float64(total) {
			b.moveLocked(ctx, Open)
		}
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.now()
	b.state = next
	b.ok, b.failed = 0, 0
	b.windowStart = now
	if next == Open {
		b.openedAt = now
	}
	b.publish()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	}
	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", b.target).Stringer("from_state", prev).Stringer("to_state", next).Msg("breaker_transition")
}

func (b *Breaker) publish() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(float64(b.state))
	}
}
