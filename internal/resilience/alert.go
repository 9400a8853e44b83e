package resilience

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/metrics"
)

// DefaultAlertCooldown is the minimum spacing between alerts for the same
// component/category/severity tuple.
const DefaultAlertCooldown = 5 * time.Minute

// Alerter rate-limits failure notifications. Only HIGH and CRITICAL
// severities alert; repeats within the cooldown window are suppressed.
type Alerter struct {
	log      *slog.Logger
	clk      clock.Clock
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewAlerter builds an alerter. A non-positive cooldown falls back to
// DefaultAlertCooldown.
func NewAlerter(log *slog.Logger, clk clock.Clock, cooldown time.Duration) *Alerter {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Alerter{
		log:      log,
		clk:      clk,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// Notify emits an alert for e unless its severity is below HIGH or an
// alert for the same component/category/severity fired within the
// cooldown. Returns whether an alert was emitted.
func (a *Alerter) Notify(e *EnhancedError) bool {
	if !e.Severity.Alertable() {
		return false
	}

	key := fmt.Sprintf("%s|%s|%s", e.Component, e.Category, e.Severity)
	now := a.clk.Now()

	a.mu.Lock()
	if prev, ok := a.last[key]; ok && now.Sub(prev) < a.cooldown {
		a.mu.Unlock()
		metrics.AlertsSuppressed.WithLabelValues(string(e.Severity)).Inc()
		return false
	}
	a.last[key] = now
	a.mu.Unlock()

	metrics.AlertsTriggered.WithLabelValues(string(e.Severity)).Inc()
	a.log.Error("alert triggered", e.LogAttrs()...)
	return true
}
