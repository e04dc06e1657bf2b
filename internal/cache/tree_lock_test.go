package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTreeLockKeysUsePrefix(t *testing.T) {
	previous := redisPrefix
	redisPrefix = "mlm-test"
	defer func() { redisPrefix = previous }()

	if got := treeWriterKey(); got != "mlm-test:lock:tree:writer" {
		t.Fatalf("unexpected writer key: %s", got)
	}
	if got := treeReadersKey(); got != "mlm-test:lock:tree:readers" {
		t.Fatalf("unexpected readers key: %s", got)
	}
}

func TestTreeLockerWithoutClient(t *testing.T) {
	locker := NewTreeLocker(nil, 0)
	if locker.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", locker.ttl)
	}
	if _, err := locker.RLock(context.Background(), time.Millisecond); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected unavailable error on shared lock, got %v", err)
	}
	if _, err := locker.Lock(context.Background(), time.Millisecond); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected unavailable error on exclusive lock, got %v", err)
	}
}

func TestTreeLockerPollTimesOut(t *testing.T) {
	locker := NewTreeLocker(nil, time.Second)
	attempts := 0
	err := locker.poll(context.Background(), 20*time.Millisecond, func() (bool, error) {
		attempts++
		return false, nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected repeated attempts before timing out, got %d", attempts)
	}

	boom := errors.New("redis down")
	if err := locker.poll(context.Background(), time.Second, func() (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected redis error to surface, got %v", err)
	}
}

func TestTreeLockerHoldReleasesOnce(t *testing.T) {
	locker := NewTreeLocker(nil, 30*time.Millisecond)
	released := 0
	refreshed := make(chan struct{}, 8)
	unlock := locker.hold(
		func(context.Context) error {
			released++
			return nil
		},
		func(context.Context) error {
			select {
			case refreshed <- struct{}{}:
			default:
			}
			return nil
		},
	)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatalf("lock was not refreshed while held")
	}
	unlock()
	unlock()
	if released != 1 {
		t.Fatalf("expected single release, got %d", released)
	}
}
