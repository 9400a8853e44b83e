package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/infra/cache"
)

func newTestExecutor(clk clock.Clock, c cache.Cache) *Executor {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := NewBreakerRegistry(5, time.Minute, clk)
	alerter := NewAlerter(log, clk, time.Minute)
	return NewExecutor(log, clk, c, reg, alerter)
}

func testErrCtx() ErrorContext {
	return ErrorContext{
		Category:  CategoryNetwork,
		Severity:  SeverityMedium,
		Component: "store",
		Operation: "load",
	}
}

// =============================================================================
// Retry Strategy Tests
// =============================================================================

func TestRetryRecoversAfterFailures(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errBoom
		}
		return "done", nil
	}

	cfg := Config{
		Strategy:          StrategyRetry,
		MaxRetries:        3,
		InitialDelay:      20 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}
	res := ex.HandleWithRecovery(context.Background(), op, cfg, testErrCtx())

	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.AttemptsUsed != 3 {
		t.Errorf("expected 3 attempts, got %d", res.AttemptsUsed)
	}
	if !res.RecoveryApplied {
		t.Error("expected RecoveryApplied after retries")
	}
	if res.Strategy != StrategyRetry {
		t.Errorf("expected strategy RETRY, got %s", res.Strategy)
	}
	// Backoff sleeps were 20ms then 40ms.
	if res.TotalTime < 55*time.Millisecond {
		t.Errorf("expected total time >= 55ms, got %s", res.TotalTime)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return nil, errBoom
	}

	cfg := Config{
		Strategy:          StrategyRetry,
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 2,
	}
	res := ex.HandleWithRecovery(context.Background(), op, cfg, testErrCtx())

	if res.Success {
		t.Fatal("expected failure")
	}
	if calls != 2 || res.AttemptsUsed != 2 {
		t.Errorf("expected 2 attempts, got calls=%d attempts=%d", calls, res.AttemptsUsed)
	}

	var enh *EnhancedError
	if !errors.As(res.Err, &enh) {
		t.Fatalf("expected EnhancedError, got %T", res.Err)
	}
	if enh.Component != "store" || enh.Operation != "load" {
		t.Errorf("unexpected error context: %s.%s", enh.Component, enh.Operation)
	}
	if !errors.Is(res.Err, errBoom) {
		t.Error("expected wrapped cause to be preserved")
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	op := func(context.Context) (any, error) {
		return nil, errBoom
	}

	time.AfterFunc(20*time.Millisecond, cancel)

	cfg := Config{
		Strategy:          StrategyRetry,
		MaxRetries:        5,
		InitialDelay:      5 * time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 1,
	}
	start := time.Now()
	res := ex.HandleWithRecovery(ctx, op, cfg, testErrCtx())

	if res.Success {
		t.Fatal("expected failure after cancellation")
	}
	if res.AttemptsUsed != 1 {
		t.Errorf("expected 1 attempt before cancel, got %d", res.AttemptsUsed)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation did not interrupt backoff, took %s", elapsed)
	}
}

func TestRetryTimeoutBoundsAttempt(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	op := func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}

	cfg := Config{
		Strategy:          StrategyRetry,
		MaxRetries:        1,
		Timeout:           20 * time.Millisecond,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
	}
	start := time.Now()
	res := ex.HandleWithRecovery(context.Background(), op, cfg, testErrCtx())

	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout did not bound the attempt, took %s", elapsed)
	}
}

// =============================================================================
// Fallback Strategy Tests
// =============================================================================

func TestFallbackActivatesOnPrimaryFailure(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	cfg := Config{
		Strategy: StrategyFallback,
		Fallback: func(context.Context) (any, error) {
			return "fallback-value", nil
		},
	}
	res := ex.HandleWithRecovery(context.Background(), failingOp, cfg, testErrCtx())

	if !res.Success {
		t.Fatalf("expected success via fallback, got %v", res.Err)
	}
	if !res.RecoveryApplied {
		t.Error("expected RecoveryApplied")
	}
	if res.Strategy != StrategyFallback {
		t.Errorf("expected strategy FALLBACK, got %s", res.Strategy)
	}
	if res.Value != "fallback-value" {
		t.Errorf("expected fallback value, got %v", res.Value)
	}
}

func TestFallbackSkippedWhenPrimarySucceeds(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	fallbackCalls := 0
	cfg := Config{
		Strategy: StrategyFallback,
		Fallback: func(context.Context) (any, error) {
			fallbackCalls++
			return nil, nil
		},
	}
	res := ex.HandleWithRecovery(context.Background(), succeedingOp, cfg, testErrCtx())

	if !res.Success || res.RecoveryApplied {
		t.Errorf("expected plain success, got success=%v recovery=%v", res.Success, res.RecoveryApplied)
	}
	if fallbackCalls != 0 {
		t.Errorf("fallback invoked %d times on primary success", fallbackCalls)
	}
}

func TestFallbackFailureCarriesSuffix(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	cfg := Config{
		Strategy: StrategyFallback,
		Fallback: func(context.Context) (any, error) {
			return nil, errors.New("fallback down")
		},
	}
	res := ex.HandleWithRecovery(context.Background(), failingOp, cfg, testErrCtx())

	if res.Success {
		t.Fatal("expected failure")
	}
	var enh *EnhancedError
	if !errors.As(res.Err, &enh) {
		t.Fatalf("expected EnhancedError, got %T", res.Err)
	}
	if enh.Operation != "load:fallback" {
		t.Errorf("expected operation suffix ':fallback', got %q", enh.Operation)
	}
}

// =============================================================================
// Circuit Break / Fail Fast / Degrade Tests
// =============================================================================

func TestCircuitBreakStrategyStopsInvoking(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return nil, errBoom
	}
	cfg := Config{Strategy: StrategyCircuitBreak, BreakerThreshold: 2}
	ec := testErrCtx()

	for i := 0; i < 2; i++ {
		res := ex.HandleWithRecovery(context.Background(), op, cfg, ec)
		if res.Success {
			t.Fatalf("call %d: expected failure", i+1)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 invocations before opening, got %d", calls)
	}

	res := ex.HandleWithRecovery(context.Background(), op, cfg, ec)
	if res.Success {
		t.Fatal("expected failure with open circuit")
	}
	if calls != 2 {
		t.Errorf("operation invoked through open circuit, calls=%d", calls)
	}
	if !errors.Is(res.Err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", res.Err)
	}
}

func TestFailFastSingleAttempt(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return nil, errBoom
	}
	res := ex.HandleWithRecovery(context.Background(), op, Config{Strategy: StrategyFailFast}, testErrCtx())

	if res.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 || res.AttemptsUsed != 1 {
		t.Errorf("expected exactly one attempt, got calls=%d attempts=%d", calls, res.AttemptsUsed)
	}
	if res.RecoveryApplied {
		t.Error("fail-fast must not apply recovery")
	}
}

func TestDegradeServesCachedSnapshot(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	mem := cache.NewMemory(clk)
	defer mem.Close()
	ex := newTestExecutor(clk, mem)

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return map[string]int{"sessions": 42}, nil
		}
		return nil, errBoom
	}
	cfg := Config{Strategy: StrategyDegrade}
	ec := testErrCtx()

	res := ex.HandleWithRecovery(context.Background(), op, cfg, ec)
	if !res.Success || res.RecoveryApplied {
		t.Fatalf("expected fresh success, got success=%v recovery=%v", res.Success, res.RecoveryApplied)
	}

	res = ex.HandleWithRecovery(context.Background(), op, cfg, ec)
	if !res.Success {
		t.Fatalf("expected degraded success, got %v", res.Err)
	}
	if !res.RecoveryApplied {
		t.Error("expected RecoveryApplied when serving snapshot")
	}
	raw, ok := res.Value.(json.RawMessage)
	if !ok {
		t.Fatalf("expected json.RawMessage snapshot, got %T", res.Value)
	}
	if !strings.Contains(string(raw), "42") {
		t.Errorf("snapshot lost payload: %s", raw)
	}
}

func TestDegradeFallsBackWithoutSnapshot(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	mem := cache.NewMemory(clk)
	defer mem.Close()
	ex := newTestExecutor(clk, mem)

	cfg := Config{
		Strategy: StrategyDegrade,
		Fallback: func(context.Context) (any, error) {
			return "static", nil
		},
	}
	res := ex.HandleWithRecovery(context.Background(), failingOp, cfg, testErrCtx())

	if !res.Success {
		t.Fatalf("expected fallback success, got %v", res.Err)
	}
	if !res.RecoveryApplied {
		t.Error("expected RecoveryApplied via fallback")
	}
	if res.Value != "static" {
		t.Errorf("expected fallback value, got %v", res.Value)
	}
}

// =============================================================================
// Backoff Tests
// =============================================================================

func TestBackoffDelay(t *testing.T) {
	ex := newTestExecutor(clock.System(), nil)
	cfg := withDefaults(Config{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          350 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond}, // capped
		{4, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ex.backoffDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %s, got %s", tt.attempt, tt.want, got)
		}
	}

	cfg.JitterEnabled = true
	for i := 0; i < 100; i++ {
		d := ex.backoffDelay(cfg, 1)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay %s outside ±25%% band", d)
		}
	}
}
