package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/handoff/internal/control"
	"github.com/vietddude/handoff/internal/core/config"
	"github.com/vietddude/handoff/internal/core/domain"
)

func TestGracefulShutdown(t *testing.T) {
	// Memory-mode config: enough to start every component without external
	// dependencies.
	cfg, err := config.LoadOrDefault("")
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	cfg.Server.Port = 0

	svc, err := control.NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the scheduler and health server spin up, then do some work so
	// shutdown happens with live state.
	sess := &domain.Session{SessionKey: "shutdown-session", AgentFrom: "agent-a"}
	if err := svc.Manager().RegisterSession(ctx, sess); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() {
		done <- svc.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}

	// A second stop must not panic or hang on already-closed components.
	stopCtx2, stopCancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel2()
	_ = svc.Stop(stopCtx2)
}
