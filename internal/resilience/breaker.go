package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/metrics"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens
	// a breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerTimeout is how long an open breaker rejects calls
	// before admitting a probe.
	DefaultBreakerTimeout = 60 * time.Second
)

// ErrCircuitOpen is returned when a breaker rejects a call without
// invoking the wrapped operation.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreaker guards a single operation key. After threshold
// consecutive failures it opens and rejects calls until timeout elapses,
// then admits a single probe: success closes the breaker, failure reopens
// it.
type CircuitBreaker struct {
	key       string
	threshold int
	timeout   time.Duration
	clk       clock.Clock

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewCircuitBreaker builds a closed breaker for key. Non-positive
// threshold or timeout fall back to the defaults.
func NewCircuitBreaker(key string, threshold int, timeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	if clk == nil {
		clk = clock.System()
	}
	b := &CircuitBreaker{
		key:       key,
		threshold: threshold,
		timeout:   timeout,
		clk:       clk,
		state:     StateClosed,
	}
	metrics.BreakerState.WithLabelValues(key).Set(stateValue(StateClosed))
	return b
}

// Execute runs op through the breaker. In OPEN it fails immediately with
// ErrCircuitOpen unless the timeout has elapsed, in which case exactly one
// caller is admitted as a HALF_OPEN probe. A panic inside op is converted
// to an error and counted as a failure.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}

	value, err := b.run(ctx, op)
	b.record(err)
	return value, err
}

func (b *CircuitBreaker) run(ctx context.Context, op func(context.Context) (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", b.key, r)
		}
	}()
	return op(ctx)
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clk.Now().Sub(b.lastFailure) <= b.timeout {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.key)
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		// Single-probe admission: one in-flight call decides the outcome.
		if b.probing {
			return fmt.Errorf("%w: %s probe in flight", ErrCircuitOpen, b.key)
		}
		b.probing = true
	}
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	b.lastFailure = b.clk.Now()
	if b.state != StateOpen && (b.state == StateHalfOpen || b.failures >= b.threshold) {
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *CircuitBreaker) transition(to BreakerState) {
	b.state = to
	metrics.BreakerState.WithLabelValues(b.key).Set(stateValue(to))
	metrics.BreakerTransitions.WithLabelValues(b.key, string(to)).Inc()
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to CLOSED with zero failures.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func stateValue(s BreakerState) float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// BreakerRegistry owns the process's circuit breakers, one per
// component:operation key.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	clk       clock.Clock
	threshold int
	timeout   time.Duration
}

// NewBreakerRegistry builds a registry whose breakers default to the given
// threshold and timeout.
func NewBreakerRegistry(threshold int, timeout time.Duration, clk clock.Clock) *BreakerRegistry {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	if clk == nil {
		clk = clock.System()
	}
	return &BreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		clk:       clk,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Get returns the breaker for key, creating it on first use. A positive
// threshold overrides the registry default for a newly created breaker;
// an existing breaker keeps the threshold it was created with.
func (r *BreakerRegistry) Get(key string, threshold int) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	if threshold <= 0 {
		threshold = r.threshold
	}
	b := NewCircuitBreaker(key, threshold, r.timeout, r.clk)
	r.breakers[key] = b
	return b
}

// States returns a snapshot of every breaker's state, keyed by operation
// key.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BreakerState, len(r.breakers))
	for key, b := range r.breakers {
		out[key] = b.State()
	}
	return out
}
