package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mlm-engine/internal/config"

	"golang.org/x/sync/semaphore"
)

// ParticipantLocker 会员级互斥锁
// 同一会员的结转与收益更新在任意时刻只允许一个事务持有。
type ParticipantLocker interface {
	TryLock(ctx context.Context, participantID uint, timeout time.Duration) (unlock func(), err error)
}

// LockSetting 会员锁与重试配置
type LockSetting struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// LockSettingFromConfig 从配置构建锁设置
func LockSettingFromConfig(cfg config.LockConfig) LockSetting {
	setting := LockSetting{
		Timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	}
	return normalizeLockSetting(setting)
}

func normalizeLockSetting(setting LockSetting) LockSetting {
	if setting.Timeout <= 0 {
		setting.Timeout = 2 * time.Second
	}
	if setting.MaxRetries < 0 {
		setting.MaxRetries = 0
	}
	if setting.RetryBackoff <= 0 {
		setting.RetryBackoff = 50 * time.Millisecond
	}
	return setting
}

// LocalParticipantLocker 进程内会员锁
type LocalParticipantLocker struct {
	mu    sync.Mutex
	slots map[uint]chan struct{}
}

// NewLocalParticipantLocker 创建进程内会员锁
func NewLocalParticipantLocker() *LocalParticipantLocker {
	return &LocalParticipantLocker{slots: make(map[uint]chan struct{})}
}

func (l *LocalParticipantLocker) slot(participantID uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[participantID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[participantID] = ch
	}
	return ch
}

// TryLock 在超时时间内获取会员锁
func (l *LocalParticipantLocker) TryLock(ctx context.Context, participantID uint, timeout time.Duration) (func(), error) {
	ch := l.slot(participantID)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-ch })
		}, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: participant %d lock timeout", ErrConcurrentModification, participantID)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: participant %d: %v", ErrConcurrentModification, participantID, ctx.Err())
	}
}

// lockSet 单个事务持有的会员锁集合，事务结束后统一释放
type lockSet struct {
	ctx     context.Context
	locker  ParticipantLocker
	timeout time.Duration
	held    map[uint]func()
	order   []uint
	onWait  func()
}

func newLockSet(ctx context.Context, locker ParticipantLocker, timeout time.Duration) *lockSet {
	return &lockSet{
		ctx:     ctx,
		locker:  locker,
		timeout: timeout,
		held:    make(map[uint]func()),
	}
}

func (s *lockSet) acquire(participantID uint) error {
	if participantID == 0 || s.locker == nil {
		return nil
	}
	if _, ok := s.held[participantID]; ok {
		return nil
	}
	unlock, err := s.locker.TryLock(s.ctx, participantID, s.timeout)
	if err != nil {
		if s.onWait != nil {
			s.onWait()
		}
		if errors.Is(err, ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("%w: participant %d: %v", ErrConcurrentModification, participantID, err)
	}
	s.held[participantID] = unlock
	s.order = append(s.order, participantID)
	return nil
}

func (s *lockSet) releaseAll() {
	for i := len(s.order) - 1; i >= 0; i-- {
		if unlock := s.held[s.order[i]]; unlock != nil {
			unlock()
		}
	}
	s.held = make(map[uint]func())
	s.order = nil
}

// TreeLocker 安置树读写锁
// 删除会员与全量重算独占，购买与注册共享；多实例部署时由 Redis 实现跨进程互斥。
type TreeLocker interface {
	RLock(ctx context.Context, timeout time.Duration) (unlock func(), err error)
	Lock(ctx context.Context, timeout time.Duration) (unlock func(), err error)
}

// 独占时一次占满全部份额
const localTreeWeight = 1 << 20

// LocalTreeLocker 进程内安置树锁，等待者按先后顺序获取，独占请求不会被后续共享请求饿死
type LocalTreeLocker struct {
	sem *semaphore.Weighted
}

// NewLocalTreeLocker 创建进程内安置树锁
func NewLocalTreeLocker() *LocalTreeLocker {
	return &LocalTreeLocker{sem: semaphore.NewWeighted(localTreeWeight)}
}

// RLock 共享获取
func (l *LocalTreeLocker) RLock(ctx context.Context, timeout time.Duration) (func(), error) {
	return l.acquire(ctx, timeout, 1)
}

// Lock 独占获取
func (l *LocalTreeLocker) Lock(ctx context.Context, timeout time.Duration) (func(), error) {
	return l.acquire(ctx, timeout, localTreeWeight)
}

func (l *LocalTreeLocker) acquire(ctx context.Context, timeout time.Duration, weight int64) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, weight); err != nil {
		return nil, fmt.Errorf("%w: tree lock: %v", ErrConcurrentModification, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.sem.Release(weight) })
	}, nil
}
