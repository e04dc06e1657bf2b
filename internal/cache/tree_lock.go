package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mlm-engine/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 存在独占持有者或独占等待者时拒绝共享获取
var acquireTreeReadScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", now)
redis.call("ZADD", KEYS[2], now + ttl, ARGV[1])
redis.call("PEXPIRE", KEYS[2], ttl)
return 1
`)

// 返回 -1 表示被其他独占者持有，0 表示获取成功，大于 0 为仍未退出的共享持有者数量
var acquireTreeWriteScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder and holder ~= ARGV[1] then
	return -1
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[2])
return redis.call("ZCARD", KEYS[2])
`)

var refreshTreeReadScript = redis.NewScript(`
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	redis.call("ZADD", KEYS[1], now + ttl, ARGV[1])
	redis.call("PEXPIRE", KEYS[1], ttl)
	return 1
end
return 0
`)

var refreshTreeWriteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// TreeLocker 基于 Redis 的跨进程安置树读写锁
// 共享持有者记录在有序集合中（分值为过期时间），独占持有者为带 TTL 的字符串键；
// 独占请求先登记再等待共享持有者退出，期间新的共享请求被拒绝。持有期间后台续期。
type TreeLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeLocker 创建分布式安置树锁
func NewTreeLocker(client *redis.Client, ttl time.Duration) *TreeLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &TreeLocker{client: client, ttl: ttl}
}

// RLock 共享获取（购买、注册）
func (l *TreeLocker) RLock(ctx context.Context, timeout time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return nil, ErrLockUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	keys := []string{treeWriterKey(), treeReadersKey()}
	token := uuid.NewString()

	err := l.poll(ctx, timeout, func() (bool, error) {
		acquired, err := acquireTreeReadScript.Run(ctx, l.client, keys, token, nowMillis(), l.ttl.Milliseconds()).Int64()
		return acquired == 1, err
	})
	if err != nil {
		return nil, err
	}
	return l.hold(
		func(ctx context.Context) error {
			return l.client.ZRem(ctx, treeReadersKey(), token).Err()
		},
		func(ctx context.Context) error {
			return refreshTreeReadScript.Run(ctx, l.client, []string{treeReadersKey()}, token, nowMillis(), l.ttl.Milliseconds()).Err()
		},
	), nil
}

// Lock 独占获取（删除会员、全量重算）
func (l *TreeLocker) Lock(ctx context.Context, timeout time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return nil, ErrLockUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	keys := []string{treeWriterKey(), treeReadersKey()}
	token := uuid.NewString()
	release := func(ctx context.Context) error {
		return releaseLockScript.Run(ctx, l.client, []string{treeWriterKey()}, token).Err()
	}

	err := l.poll(ctx, timeout, func() (bool, error) {
		readers, err := acquireTreeWriteScript.Run(ctx, l.client, keys, token, nowMillis(), l.ttl.Milliseconds()).Int64()
		return readers == 0, err
	})
	if err != nil {
		// 撤销已登记的独占等待
		if releaseErr := release(context.Background()); releaseErr != nil {
			logger.Warnw("tree_lock_release_failed", "mode", "exclusive", "error", releaseErr)
		}
		return nil, err
	}
	return l.hold(release, func(ctx context.Context) error {
		return refreshTreeWriteScript.Run(ctx, l.client, []string{treeWriterKey()}, token, l.ttl.Milliseconds()).Err()
	}), nil
}

func (l *TreeLocker) poll(ctx context.Context, timeout time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	wait := lockPollMinimum
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: placement tree", ErrLockTimeout)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = nextLockPoll(wait)
	}
}

// hold 持有期间按 TTL 的三分之一续期，返回只执行一次的释放函数
func (l *TreeLocker) hold(release, refresh func(ctx context.Context) error) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := refresh(context.Background()); err != nil {
					logger.Warnw("tree_lock_refresh_failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			if err := release(context.Background()); err != nil {
				logger.Warnw("tree_lock_release_failed", "error", err)
			}
		})
	}
}

func treeWriterKey() string {
	return buildKey("lock:tree:writer")
}

func treeReadersKey() string {
	return buildKey("lock:tree:readers")
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
