package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mlm-engine/internal/config"
)

type fakeService struct {
	name     string
	startErr error

	mu      sync.Mutex
	stopped bool
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestRunnerStopsAllServicesOnCancel(t *testing.T) {
	api := &fakeService{name: "api"}
	worker := &fakeService{name: "worker"}
	runner := NewRunner(api, worker)
	closed := 0
	runner.OnShutdown(func() error {
		closed++
		return nil
	})
	runner.OnShutdown(func() error {
		closed++
		return errors.New("close failed")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := runner.Run(ctx, time.Second, nil); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run runner failed: %v", err)
	}
	if !api.isStopped() || !worker.isStopped() {
		t.Fatalf("expected all services stopped")
	}
	if closed != 2 {
		t.Fatalf("expected 2 closers called, got %d", closed)
	}
}

func TestRunnerReturnsStartError(t *testing.T) {
	startErr := errors.New("listen failed")
	failing := &fakeService{name: "api", startErr: startErr}
	healthy := &fakeService{name: "worker"}
	runner := NewRunner(failing, healthy)

	err := runner.Run(context.Background(), time.Second, nil)
	if !errors.Is(err, startErr) {
		t.Fatalf("expected start error, got %v", err)
	}
	if !healthy.isStopped() {
		t.Fatalf("expected healthy service stopped after sibling failure")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("expected error for empty runner")
	}
	var nilRunner *Runner
	if err := RunWithOptions(nilRunner, Options{}); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}

func TestBuildRunnerRejectsBadOptions(t *testing.T) {
	if _, err := BuildRunner(Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildRunner(Options{Config: &config.Config{}, Mode: "batch"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":         ModeAll,
		"all":      ModeAll,
		" API ":    ModeAPI,
		"worker":   ModeWorker,
		"Worker\n": ModeWorker,
	}
	for raw, expected := range cases {
		got, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("parse %q failed: %v", raw, err)
		}
		if got != expected {
			t.Fatalf("parse %q: expected %s, got %s", raw, expected, got)
		}
	}
	if _, err := ParseMode("batch"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestModeSelectsServices(t *testing.T) {
	if !ModeAll.ServesHTTP() || !ModeAPI.ServesHTTP() || ModeWorker.ServesHTTP() {
		t.Fatalf("only all and api modes serve http")
	}
	if ModeAll.RunsWorker(false) || !ModeAll.RunsWorker(true) {
		t.Fatalf("all mode runs the worker only when the queue is enabled")
	}
	if ModeAPI.RunsWorker(true) {
		t.Fatalf("api mode never runs the worker")
	}
	if !ModeWorker.RunsWorker(false) {
		t.Fatalf("worker mode always runs the worker")
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll {
		t.Fatalf("expected default mode all, got %s", opts.Mode)
	}
	if opts.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", opts.ShutdownTimeout)
	}
	if opts.Logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestNewHTTPServiceAppliesServerConfig(t *testing.T) {
	svc := NewHTTPService(config.ServerConfig{
		Host:                "127.0.0.1",
		Port:                "8089",
		ReadTimeoutSeconds:  15,
		WriteTimeoutSeconds: 0,
	}, nil)
	if svc.Addr() != "127.0.0.1:8089" {
		t.Fatalf("unexpected addr: %s", svc.Addr())
	}
	if svc.server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout: %v", svc.server.ReadTimeout)
	}
	if svc.server.WriteTimeout != 0 {
		t.Fatalf("write timeout should stay unlimited, got %v", svc.server.WriteTimeout)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop unstarted server failed: %v", err)
	}
}

type failingStopService struct {
	fakeService
}

func (s *failingStopService) Stop(ctx context.Context) error {
	return errors.New("drain timeout")
}

func TestRunnerReportsStopErrors(t *testing.T) {
	svc := &failingStopService{fakeService: fakeService{name: "worker"}}
	runner := NewRunner(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runner.Run(ctx, time.Second, nil)
	if err == nil || !strings.Contains(err.Error(), "stop worker") {
		t.Fatalf("expected stop error, got %v", err)
	}
}
