package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/mlm-engine/internal/config"

	"github.com/hibiken/asynq"
)

func TestNewServiceRequiresEnabledQueue(t *testing.T) {
	if _, err := NewService(nil, &Consumer{}); err == nil {
		t.Fatalf("expected error for nil queue config")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: false}, &Consumer{}); err == nil {
		t.Fatalf("expected error for disabled queue")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("expected error for nil consumer")
	}
}

func TestTaskLoggingPassesThroughResult(t *testing.T) {
	handlerErr := errors.New("handler failed")
	failing := taskLogging(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		return handlerErr
	}))
	if err := failing.ProcessTask(context.Background(), asynq.NewTask("test:fail", nil)); !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}

	calls := 0
	ok := taskLogging(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		calls++
		return nil
	}))
	if err := ok.ProcessTask(context.Background(), asynq.NewTask("test:ok", nil)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
}

func TestServiceNilSafety(t *testing.T) {
	var svc *Service
	if svc.Name() != "worker" {
		t.Fatalf("unexpected name for nil service")
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected start error for nil service")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("expected nil stop error, got %v", err)
	}
}
