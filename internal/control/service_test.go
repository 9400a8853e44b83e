package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/handoff/internal/core/config"
	"github.com/vietddude/handoff/internal/core/domain"
	"github.com/vietddude/handoff/internal/health"
)

func memoryConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	cfg.Server.Port = 0 // random port
	return cfg
}

func TestServiceLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := NewService(ctx, memoryConfig(t))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if svc.db != nil {
		t.Error("expected memory storage without a database URL")
	}
	if svc.redisClient != nil {
		t.Error("expected memory cache without a redis URL")
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Start seeds the default retention policy.
	policies, err := svc.manager.AllRetentionPolicies(ctx)
	if err != nil {
		t.Fatalf("AllRetentionPolicies: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != domain.DefaultPolicyName {
		t.Errorf("expected seeded default policy, got %+v", policies)
	}

	// The wired manager accepts sessions end to end.
	sess := &domain.Session{SessionKey: "svc-session", AgentFrom: "agent-a"}
	if err := svc.manager.RegisterSession(ctx, sess); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected generated session ID")
	}

	report := svc.healthMon.CheckHealth(ctx)
	if report.SystemStatus != health.StatusHealthy {
		t.Errorf("expected healthy system, got %s", report.SystemStatus)
	}
	if report.Database.Detail != "in-memory" {
		t.Errorf("expected in-memory database detail, got %q", report.Database.Detail)
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestServiceSeedsConfiguredPolicies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := memoryConfig(t)
	cfg.Retention.Policies = append(cfg.Retention.Policies, config.PolicyConfig{
		Name:                   "short-lived",
		ActiveSessionTTLHours:  2,
		ArchivedSessionTTLDays: 7,
		LogRetentionDays:       3,
		MetricsRetentionDays:   2,
		DormantThresholdHours:  1,
	})

	svc, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		_ = svc.Stop(ctx)
	}()

	policies, err := svc.manager.AllRetentionPolicies(ctx)
	if err != nil {
		t.Fatalf("AllRetentionPolicies: %v", err)
	}
	names := make(map[string]bool, len(policies))
	for _, p := range policies {
		names[p.Name] = true
	}
	if !names[domain.DefaultPolicyName] || !names["short-lived"] {
		t.Errorf("expected both policies seeded, got %v", names)
	}
}

func TestServiceRejectsInvalidSeedPolicy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := memoryConfig(t)
	cfg.Retention.Policies = []config.PolicyConfig{{
		Name: "broken", // TTLs left at zero
	}}

	svc, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := svc.Start(ctx); err == nil {
		_ = svc.Stop(ctx)
		t.Fatal("expected Start to fail on invalid policy")
	}
}

func TestEffectiveJobConfigsMergesPartialOverrides(t *testing.T) {
	cfg := memoryConfig(t)
	off := false
	cfg.Jobs = map[string]config.JobConfig{
		"cleanup":           {Enabled: &off},
		"dormant-detection": {IntervalMinutes: 30},
	}

	effective := EffectiveJobConfigs(cfg)

	// Disabling a job must not lose its default schedule.
	cleanup := effective["cleanup"]
	if cleanup.Enabled {
		t.Error("expected cleanup disabled")
	}
	if cleanup.Interval != time.Hour || cleanup.MaxRetries != 3 {
		t.Errorf("expected default schedule retained, got %+v", cleanup)
	}

	dormant := effective["dormant-detection"]
	if !dormant.Enabled || dormant.Interval != 30*time.Minute {
		t.Errorf("expected tuned interval with defaults, got %+v", dormant)
	}

	// Untouched jobs keep the stock config.
	if effective["retention-enforcement"].Interval != 24*time.Hour {
		t.Errorf("unexpected retention config: %+v", effective["retention-enforcement"])
	}
}

func TestServiceRegistersAllJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := NewService(ctx, memoryConfig(t))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	statuses := svc.sched.Statuses()
	if len(statuses) != 4 {
		t.Fatalf("expected 4 registered jobs, got %d", len(statuses))
	}
	want := map[string]bool{
		"cache-optimization":    true,
		"cleanup":               true,
		"dormant-detection":     true,
		"retention-enforcement": true,
	}
	for _, st := range statuses {
		if !want[st.Name] {
			t.Errorf("unexpected job %q", st.Name)
		}
	}
}
