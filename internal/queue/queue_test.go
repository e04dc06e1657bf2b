package queue

import (
	"encoding/json"
	"testing"

	"github.com/mlm-engine/internal/config"
)

func TestNewPackagePurchasedTask(t *testing.T) {
	task, err := NewPackagePurchasedTask(PackagePurchasedPayload{BuyerID: 3, PackageID: 9})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != "compensation:package_purchased" {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	var payload PackagePurchasedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.BuyerID != 3 || payload.PackageID != 9 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueuePackagePurchased(1, 2); err != nil {
		t.Fatalf("disabled enqueue should be a no-op, got %v", err)
	}
	if err := client.EnqueueRecalculateAll(RecalculateAllPayload{RequestedBy: 1}); err != nil {
		t.Fatalf("disabled enqueue should be a no-op, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: " redis ", Port: 6380, DB: 2})
	if opt.Addr != "redis:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt: %+v", opt)
	}
	if cfg.Concurrency != 10 || cfg.Queues[CriticalQueue] != 2 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}
