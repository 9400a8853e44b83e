package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
)

var errBoom = errors.New("boom")

func failingOp(context.Context) (any, error) {
	return nil, errBoom
}

func succeedingOp(context.Context) (any, error) {
	return "ok", nil
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 3, time.Minute, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := br.Execute(ctx, failingOp); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}

	if br.State() != StateOpen {
		t.Errorf("expected OPEN after 3 failures, got %s", br.State())
	}
	if br.FailureCount() != 3 {
		t.Errorf("expected failure count 3, got %d", br.FailureCount())
	}

	// Open breaker must reject without invoking the operation.
	invoked := false
	_, err := br.Execute(ctx, func(context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("operation was invoked while circuit open")
	}
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 2, time.Minute, clk)
	ctx := context.Background()

	_, _ = br.Execute(ctx, failingOp)
	_, _ = br.Execute(ctx, failingOp)
	if br.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", br.State())
	}

	// Before the timeout elapses the breaker stays shut.
	clk.Advance(30 * time.Second)
	if _, err := br.Execute(ctx, succeedingOp); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen before timeout, got %v", err)
	}

	// Past the timeout a probe is admitted and its success closes.
	clk.Advance(31 * time.Second)
	value, err := br.Execute(ctx, succeedingOp)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if value != "ok" {
		t.Errorf("expected probe result 'ok', got %v", value)
	}
	if br.State() != StateClosed {
		t.Errorf("expected CLOSED after successful probe, got %s", br.State())
	}
	if br.FailureCount() != 0 {
		t.Errorf("expected failure count reset to 0, got %d", br.FailureCount())
	}
}

func TestBreakerReopensAfterFailedProbe(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 2, time.Minute, clk)
	ctx := context.Background()

	_, _ = br.Execute(ctx, failingOp)
	_, _ = br.Execute(ctx, failingOp)

	clk.Advance(61 * time.Second)
	if _, err := br.Execute(ctx, failingOp); err == nil {
		t.Fatal("expected probe to fail")
	}
	if br.State() != StateOpen {
		t.Errorf("expected OPEN after failed probe, got %s", br.State())
	}
}

func TestBreakerSingleProbeAdmission(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 1, time.Minute, clk)
	ctx := context.Background()

	_, _ = br.Execute(ctx, failingOp)
	clk.Advance(61 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = br.Execute(ctx, func(context.Context) (any, error) {
			close(entered)
			<-release
			return nil, nil
		})
	}()

	<-entered
	// A second caller must be rejected while the probe is in flight.
	_, err := br.Execute(ctx, succeedingOp)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen during probe, got %v", err)
	}

	close(release)
	<-done
	if br.State() != StateClosed {
		t.Errorf("expected CLOSED after probe succeeded, got %s", br.State())
	}
}

func TestBreakerReset(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 1, time.Minute, clk)
	ctx := context.Background()

	_, _ = br.Execute(ctx, failingOp)
	if br.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", br.State())
	}

	br.Reset()
	if br.State() != StateClosed {
		t.Errorf("expected CLOSED after reset, got %s", br.State())
	}
	if br.FailureCount() != 0 {
		t.Errorf("expected failure count 0 after reset, got %d", br.FailureCount())
	}

	if _, err := br.Execute(ctx, succeedingOp); err != nil {
		t.Errorf("expected call to pass after reset, got %v", err)
	}
}

func TestBreakerRecoversFromPanic(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	br := NewCircuitBreaker("db:read", 5, time.Minute, clk)
	ctx := context.Background()

	_, err := br.Execute(ctx, func(context.Context) (any, error) {
		panic("unexpected")
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if br.FailureCount() != 1 {
		t.Errorf("expected panic counted as failure, got count %d", br.FailureCount())
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistryReturnsSameBreakerPerKey(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	reg := NewBreakerRegistry(5, time.Minute, clk)

	a := reg.Get("db:read", 0)
	b := reg.Get("db:read", 2)
	if a != b {
		t.Error("expected same breaker instance for identical key")
	}

	c := reg.Get("db:write", 0)
	if a == c {
		t.Error("expected distinct breakers for distinct keys")
	}
}

func TestRegistryStatesSnapshot(t *testing.T) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	reg := NewBreakerRegistry(1, time.Minute, clk)
	ctx := context.Background()

	_, _ = reg.Get("db:read", 0).Execute(ctx, failingOp)
	_, _ = reg.Get("db:write", 0).Execute(ctx, succeedingOp)

	states := reg.States()
	if states["db:read"] != StateOpen {
		t.Errorf("expected db:read OPEN, got %s", states["db:read"])
	}
	if states["db:write"] != StateClosed {
		t.Errorf("expected db:write CLOSED, got %s", states["db:write"])
	}
}
