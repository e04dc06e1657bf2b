package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParticipantLockKeyUsesPrefix(t *testing.T) {
	previous := redisPrefix
	redisPrefix = "mlm-test"
	defer func() { redisPrefix = previous }()

	if got := participantLockKey(42); got != "mlm-test:lock:participant:42" {
		t.Fatalf("unexpected lock key: %s", got)
	}
}

func TestNextLockPollIsCapped(t *testing.T) {
	wait := lockPollMinimum
	for i := 0; i < 10; i++ {
		wait = nextLockPoll(wait)
	}
	if wait != lockPollMaximum {
		t.Fatalf("poll interval should cap at %s, got %s", lockPollMaximum, wait)
	}
}

func TestParticipantLockerWithoutClient(t *testing.T) {
	locker := NewParticipantLocker(nil, 0)
	if locker.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", locker.ttl)
	}
	if _, err := locker.TryLock(context.Background(), 1, time.Millisecond); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if Enabled() || Client() != nil {
		t.Fatalf("redis should be disabled by default")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("ping on disabled redis should be a no-op, got %v", err)
	}
}
