package scheduler

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"repair-stack/shared/config"
	"repair-stack/shared/logging"
)

type stubMetrics string

func (m stubMetrics) GetSummary() string { return string(m) }

type stubAgent struct {
	run   func(ctx context.Context, events *AgentEvents) error
	calls int
}

func (s *stubAgent) Name() string      { return "stub" }
func (s *stubAgent) Initialize() error { return nil }
func (s *stubAgent) RunOnce(ctx context.Context, events *AgentEvents) error {
	s.calls++
	return s.run(ctx, events)
}

func TestRunOnceRecordsSuccess(t *testing.T) {
	agent := &stubAgent{run: func(ctx context.Context, events *AgentEvents) error {
		events.OnSuccess(stubMetrics("refreshed 1"), time.Millisecond)
		return nil
	}}
	s := New(config.WatchConfig{Schedule: "0 0 6 * * *"}, agent, logging.Discard())

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if agent.calls != 1 {
		t.Errorf("agent called %d times", agent.calls)
	}
	if got := s.Monitor().Snapshot().LastSummary; got != "refreshed 1" {
		t.Errorf("last summary = %q", got)
	}
}

func TestRunOnceRecordsFailure(t *testing.T) {
	agent := &stubAgent{run: func(ctx context.Context, events *AgentEvents) error {
		return errors.New("all queries failed")
	}}
	s := New(config.WatchConfig{}, agent, logging.Discard())

	err := s.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stub run failed") {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if s.Monitor().IsHealthy() {
		t.Error("monitor should be unhealthy after a failed run")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	agent := &stubAgent{run: func(context.Context, *AgentEvents) error { return nil }}
	s := New(config.WatchConfig{Schedule: "not a schedule", HealthPort: 0}, agent, logging.Discard())
	s.config.HealthPort = freePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Start(ctx); err == nil || !strings.Contains(err.Error(), "cron") {
		t.Errorf("Start() error = %v, want cron error", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
