package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
)

func newTestCache(t *testing.T) (*MemoryCache, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewMemory(clk)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Errorf("expected v1, got %q", got)
	}

	_, ok, err = c.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clk.Advance(59 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k1"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clk.Advance(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Fatal("entry survived past its TTL")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after expiry, got %d", stats.Entries)
	}
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "pinned", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(365 * 24 * time.Hour)
	if _, ok, _ := c.Get(ctx, "pinned"); !ok {
		t.Error("zero-TTL entry expired")
	}
}

func TestMemoryCachePrune(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("a"), time.Minute)
	_ = c.Set(ctx, "long", []byte("b"), time.Hour)
	_ = c.Set(ctx, "pinned", []byte("c"), 0)

	clk.Advance(10 * time.Minute)
	if removed := c.Prune(); removed != 1 {
		t.Errorf("expected 1 pruned entry, got %d", removed)
	}

	stats := c.Stats()
	if stats.Entries != 2 {
		t.Errorf("expected 2 surviving entries, got %d", stats.Entries)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k1", []byte("v1"), time.Hour)
	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Error("expected miss after delete")
	}

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "absent"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestMemoryCacheStatsCounters(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k1", []byte("v1"), 0)
	_, _, _ = c.Get(ctx, "k1")
	_, _, _ = c.Get(ctx, "k1")
	_, _, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
}

func TestMemoryCacheCloseIdempotent(t *testing.T) {
	c := NewMemory(clock.NewMock(time.Now()))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
