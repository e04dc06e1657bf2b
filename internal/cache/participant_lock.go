package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mlm-engine/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL  = 30 * time.Second
	lockPollMinimum = 5 * time.Millisecond
	lockPollMaximum = 50 * time.Millisecond
)

// ErrLockTimeout 在超时时间内未能获取会员锁
var ErrLockTimeout = errors.New("participant lock timeout")

// ErrLockUnavailable Redis 未启用
var ErrLockUnavailable = errors.New("participant lock unavailable")

// 仅删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ParticipantLocker 基于 Redis SET NX PX 的分布式会员锁
// 多实例部署时替代进程内锁，TTL 兜底防止持有者崩溃后锁不释放。
type ParticipantLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewParticipantLocker 创建分布式会员锁
func NewParticipantLocker(client *redis.Client, ttl time.Duration) *ParticipantLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &ParticipantLocker{client: client, ttl: ttl}
}

// TryLock 在超时时间内轮询获取会员锁，返回释放函数
func (l *ParticipantLocker) TryLock(ctx context.Context, participantID uint, timeout time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return nil, ErrLockUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key := participantLockKey(participantID)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	wait := lockPollMinimum

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return l.releaser(key, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: participant %d", ErrLockTimeout, participantID)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait = nextLockPoll(wait)
	}
}

func (l *ParticipantLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseLockScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
				logger.Warnw("participant_lock_release_failed", "key", key, "error", err)
			}
		})
	}
}

func participantLockKey(participantID uint) string {
	return buildKey(fmt.Sprintf("lock:participant:%d", participantID))
}

func nextLockPoll(current time.Duration) time.Duration {
	next := current * 2
	if next > lockPollMaximum {
		return lockPollMaximum
	}
	return next
}
