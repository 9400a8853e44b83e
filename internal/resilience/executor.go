package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/infra/cache"
	"github.com/vietddude/handoff/internal/metrics"
)

// Strategy selects how the executor reacts to a failing operation.
type Strategy string

const (
	StrategyRetry        Strategy = "RETRY"
	StrategyFallback     Strategy = "FALLBACK"
	StrategyCircuitBreak Strategy = "CIRCUIT_BREAK"
	StrategyFailFast     Strategy = "FAIL_FAST"
	StrategyDegrade      Strategy = "DEGRADE"
)

const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0

	// DegradedSnapshotTTL bounds how long a stale snapshot may be served
	// under the DEGRADE strategy.
	DegradedSnapshotTTL = time.Hour
)

// Operation is a unit of work run under a recovery strategy. It must
// honor ctx cancellation for the configured timeout to be effective.
type Operation func(ctx context.Context) (any, error)

// Config tunes a single HandleWithRecovery call. Zero fields fall back to
// the package defaults.
type Config struct {
	Strategy          Strategy
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterEnabled     bool
	Timeout           time.Duration
	Fallback          Operation
	BreakerThreshold  int
}

// Result reports the outcome of a recovered operation. Err is always an
// *EnhancedError on failure.
type Result struct {
	Success         bool
	Value           any
	Err             error
	AttemptsUsed    int
	TotalTime       time.Duration
	RecoveryApplied bool
	Strategy        Strategy
}

// Executor runs operations under recovery strategies, owning the breaker
// registry and the alerter it reports through.
type Executor struct {
	log      *slog.Logger
	clk      clock.Clock
	cache    cache.Cache
	breakers *BreakerRegistry
	alerter  *Alerter
}

// NewExecutor builds an executor. The cache is only used by the DEGRADE
// strategy and may be nil.
func NewExecutor(log *slog.Logger, clk clock.Clock, c cache.Cache, breakers *BreakerRegistry, alerter *Alerter) *Executor {
	if clk == nil {
		clk = clock.System()
	}
	return &Executor{
		log:      log,
		clk:      clk,
		cache:    c,
		breakers: breakers,
		alerter:  alerter,
	}
}

// HandleWithRecovery runs op under cfg.Strategy and returns a structured
// result instead of a bare error. Failures are logged and, for HIGH and
// CRITICAL severities, alerted through the cooldown-limited alerter.
func (e *Executor) HandleWithRecovery(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	start := e.clk.Now()
	cfg = withDefaults(cfg)

	var res Result
	switch cfg.Strategy {
	case StrategyFallback:
		res = e.runFallbackStrategy(ctx, op, cfg, ec)
	case StrategyCircuitBreak:
		res = e.runCircuitBreak(ctx, op, cfg, ec)
	case StrategyFailFast:
		res = e.runFailFast(ctx, op, cfg, ec)
	case StrategyDegrade:
		res = e.runDegrade(ctx, op, cfg, ec)
	default:
		res = e.runRetry(ctx, op, cfg, ec)
	}

	res.Strategy = cfg.Strategy
	res.TotalTime = e.clk.Since(start)

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	metrics.RecoveryAttempts.WithLabelValues(string(cfg.Strategy), outcome).Inc()
	return res
}

func withDefaults(cfg Config) Config {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRetry
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return cfg
}

// runRetry attempts op up to MaxRetries times with capped exponential
// backoff between attempts. Cancelling ctx stops future attempts; the
// in-flight attempt is cancelled through its own derived context.
func (e *Executor) runRetry(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		value, err := e.attempt(ctx, op, cfg.Timeout)
		if err == nil {
			if attempt > 1 {
				e.log.Info("operation recovered",
					"component", ec.Component,
					"operation", ec.Operation,
					"attempt", attempt)
			}
			return Result{Success: true, Value: value, AttemptsUsed: attempt, RecoveryApplied: attempt > 1}
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-e.clk.After(e.backoffDelay(cfg, attempt)):
		case <-ctx.Done():
			enh := Enhance(ctx.Err(), ec, e.clk.Now())
			e.logAndAlert(enh)
			return Result{Err: enh, AttemptsUsed: attempt}
		}
	}

	enh := Enhance(lastErr, ec, e.clk.Now())
	e.logAndAlert(enh)
	return Result{Err: enh, AttemptsUsed: cfg.MaxRetries}
}

func (e *Executor) runFallbackStrategy(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	value, err := e.attempt(ctx, op, cfg.Timeout)
	if err == nil {
		return Result{Success: true, Value: value, AttemptsUsed: 1}
	}
	return e.invokeFallback(ctx, cfg, ec, err)
}

// invokeFallback runs the configured fallback after err; a fallback
// failure is reported under the ":fallback" operation suffix.
func (e *Executor) invokeFallback(ctx context.Context, cfg Config, ec ErrorContext, primaryErr error) Result {
	if cfg.Fallback == nil {
		enh := Enhance(fmt.Errorf("no fallback configured: %w", primaryErr), ec, e.clk.Now())
		e.logAndAlert(enh)
		return Result{Err: enh, AttemptsUsed: 1}
	}

	e.log.Warn("fallback activated",
		"component", ec.Component,
		"operation", ec.Operation,
		"error", primaryErr.Error())

	value, err := cfg.Fallback(ctx)
	if err == nil {
		return Result{Success: true, Value: value, AttemptsUsed: 2, RecoveryApplied: true}
	}

	fbCtx := ec
	fbCtx.Operation = ec.Operation + ":fallback"
	enh := Enhance(err, fbCtx, e.clk.Now())
	e.logAndAlert(enh)
	return Result{Err: enh, AttemptsUsed: 2}
}

func (e *Executor) runCircuitBreak(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	key := ec.Component + ":" + ec.Operation
	breaker := e.breakers.Get(key, cfg.BreakerThreshold)

	value, err := breaker.Execute(ctx, func(c context.Context) (any, error) {
		return e.attempt(c, op, cfg.Timeout)
	})
	if err == nil {
		return Result{Success: true, Value: value, AttemptsUsed: 1}
	}

	enh := Enhance(err, ec, e.clk.Now())
	e.logAndAlert(enh)
	return Result{Err: enh, AttemptsUsed: 1}
}

func (e *Executor) runFailFast(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	value, err := e.attempt(ctx, op, cfg.Timeout)
	if err == nil {
		return Result{Success: true, Value: value, AttemptsUsed: 1}
	}
	enh := Enhance(err, ec, e.clk.Now())
	e.logAndAlert(enh)
	return Result{Err: enh, AttemptsUsed: 1}
}

// runDegrade serves the last known good snapshot from the cache when the
// live operation fails. Successes refresh the snapshot; the value must be
// JSON-serializable for that refresh to happen.
func (e *Executor) runDegrade(ctx context.Context, op Operation, cfg Config, ec ErrorContext) Result {
	key := degradedKey(ec.Component, ec.Operation)

	value, err := e.attempt(ctx, op, cfg.Timeout)
	if err == nil {
		if e.cache != nil {
			if data, merr := json.Marshal(value); merr == nil {
				if serr := e.cache.Set(ctx, key, data, DegradedSnapshotTTL); serr != nil {
					e.log.Warn("degraded snapshot refresh failed", "key", key, "error", serr.Error())
				}
			}
		}
		return Result{Success: true, Value: value, AttemptsUsed: 1}
	}

	if e.cache != nil {
		if data, ok, gerr := e.cache.Get(ctx, key); gerr == nil && ok {
			e.log.Warn("serving degraded snapshot",
				"component", ec.Component,
				"operation", ec.Operation,
				"error", err.Error())
			return Result{Success: true, Value: json.RawMessage(data), AttemptsUsed: 1, RecoveryApplied: true}
		}
	}

	if cfg.Fallback != nil {
		return e.invokeFallback(ctx, cfg, ec, err)
	}

	enh := Enhance(err, ec, e.clk.Now())
	e.logAndAlert(enh)
	return Result{Err: enh, AttemptsUsed: 1}
}

// attempt runs op once, bounding it with timeout when one is set.
func (e *Executor) attempt(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(tctx)
}

// backoffDelay computes the sleep before the next attempt:
// min(initial * multiplier^(attempt-1), max), with optional ±25% jitter.
func (e *Executor) backoffDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if limit := float64(cfg.MaxDelay); d > limit {
		d = limit
	}
	if cfg.JitterEnabled {
		d *= 1 + (rand.Float64()-0.5)/2
	}
	return time.Duration(d)
}

func (e *Executor) logAndAlert(enh *EnhancedError) {
	e.log.Error("operation failed", enh.LogAttrs()...)
	e.alerter.Notify(enh)
}

func degradedKey(component, operation string) string {
	return fmt.Sprintf("degraded:%s:%s", component, operation)
}
