package clock

import (
	"testing"
	"time"
)

func TestMockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewMock(start)

	if !clk.Now().Equal(start) {
		t.Errorf("expected start time, got %v", clk.Now())
	}

	clk.Advance(90 * time.Minute)
	if got := clk.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("expected advanced time, got %v", got)
	}
	if got := clk.Since(start); got != 90*time.Minute {
		t.Errorf("expected 90m since start, got %v", got)
	}
}

func TestMockAfterFiresOnAdvance(t *testing.T) {
	clk := NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ch := clk.After(time.Hour)

	select {
	case <-ch:
		t.Fatal("timer fired before any advance")
	default:
	}

	clk.Advance(30 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	clk.Advance(30 * time.Minute)
	select {
	case at := <-ch:
		if !at.Equal(clk.Now()) {
			t.Errorf("expected fire at current mock time, got %v", at)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestMockAfterZeroFiresImmediately(t *testing.T) {
	clk := NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	select {
	case <-clk.After(0):
	case <-time.After(time.Second):
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestMockSet(t *testing.T) {
	clk := NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ch := clk.After(2 * time.Hour)

	target := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	clk.Set(target)

	if !clk.Now().Equal(target) {
		t.Errorf("expected %v, got %v", target, clk.Now())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Set past the deadline did not fire the timer")
	}
}

func TestSystemClock(t *testing.T) {
	clk := System()

	before := time.Now()
	now := clk.Now()
	if now.Before(before.Add(-time.Second)) {
		t.Errorf("system Now too far in the past: %v", now)
	}
	if clk.Since(before) < 0 {
		t.Error("system Since returned negative duration")
	}

	select {
	case <-clk.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("system After did not fire")
	}
}
