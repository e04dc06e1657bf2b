package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/repository"

	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
)

const referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5
)

// CompensationObserver 奖金引擎运行指标
type CompensationObserver interface {
	EarningCredited(earningType string, amount decimal.Decimal)
	BinaryMatched(policy string, matchedVolume decimal.Decimal)
	OrchestrationFailed(step string)
	LockContended()
}

type noopCompensationObserver struct{}

func (noopCompensationObserver) EarningCredited(string, decimal.Decimal) {}
func (noopCompensationObserver) BinaryMatched(string, decimal.Decimal)   {}
func (noopCompensationObserver) OrchestrationFailed(string)              {}
func (noopCompensationObserver) LockContended()                          {}

// PackagePurchaseEnqueuer 异步投递套餐奖金计算
type PackagePurchaseEnqueuer interface {
	EnqueuePackagePurchased(buyerID, packageID uint) error
}

// CompensationService 奖金引擎服务
type CompensationService struct {
	repo     repository.LedgerRepository
	setting  CompensationSetting
	policy   MatchingPolicy
	lock     LockSetting
	locker   ParticipantLocker
	observer CompensationObserver
	enqueuer PackagePurchaseEnqueuer
	codeGen  func() string
	tree     TreeLocker
	now      func() time.Time
}

// NewCompensationService 创建奖金引擎服务
func NewCompensationService(repo repository.LedgerRepository, setting CompensationSetting, lock LockSetting) (*CompensationService, error) {
	if err := ValidateCompensationSetting(setting); err != nil {
		return nil, err
	}
	setting = NormalizeCompensationSetting(setting)
	policy, err := NewMatchingPolicy(setting.MatchingPolicy)
	if err != nil {
		return nil, err
	}
	codeGen, err := nanoid.CustomASCII(referralCodeAlphabet, referralCodeLength)
	if err != nil {
		return nil, err
	}
	return &CompensationService{
		repo:     repo,
		setting:  setting,
		policy:   policy,
		lock:     normalizeLockSetting(lock),
		locker:   NewLocalParticipantLocker(),
		tree:     NewLocalTreeLocker(),
		observer: noopCompensationObserver{},
		codeGen:  codeGen,
		now:      time.Now,
	}, nil
}

// SetLocker 替换会员锁实现（如 Redis 分布式锁）
func (s *CompensationService) SetLocker(locker ParticipantLocker) {
	if locker != nil {
		s.locker = locker
	}
}

// SetTreeLocker 替换安置树锁实现
func (s *CompensationService) SetTreeLocker(tree TreeLocker) {
	if tree != nil {
		s.tree = tree
	}
}

// SetObserver 设置指标观测
func (s *CompensationService) SetObserver(observer CompensationObserver) {
	if observer != nil {
		s.observer = observer
	}
}

// SetEnqueuer 设置异步投递，仅在 async_purchase 开启时使用
func (s *CompensationService) SetEnqueuer(enqueuer PackagePurchaseEnqueuer) {
	s.enqueuer = enqueuer
}

// Setting 当前奖金规则
func (s *CompensationService) Setting() CompensationSetting {
	return s.setting
}

// engineTx 一次事务内的上下文：事务仓储、会员锁集合、统一时间戳
type engineTx struct {
	ctx   context.Context
	repo  repository.LedgerRepository
	locks *lockSet
	now   time.Time
}

// lockParticipant 加会员锁后读取最新数据，不存在返回 nil
func (t *engineTx) lockParticipant(participantID uint) (*models.Participant, error) {
	if err := t.locks.acquire(participantID); err != nil {
		return nil, err
	}
	return t.repo.GetParticipantByIDForUpdate(participantID)
}

// runInTx 在单个事务内执行，事务结束后才释放会员锁
func (s *CompensationService) runInTx(ctx context.Context, fn func(etx *engineTx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	locks := newLockSet(ctx, s.locker, s.lock.Timeout)
	locks.onWait = s.observer.LockContended
	defer locks.releaseAll()

	return s.repo.Transaction(func(repo repository.LedgerRepository) error {
		return fn(&engineTx{
			ctx:   ctx,
			repo:  repo,
			locks: locks,
			now:   s.now(),
		})
	})
}

// treeAccess 安置树锁模式
type treeAccess int

const (
	treeShared treeAccess = iota
	treeExclusive
)

// runInTreeTx 持有安置树锁执行事务，锁在事务提交或回滚后释放
func (s *CompensationService) runInTreeTx(ctx context.Context, access treeAccess, fn func(etx *engineTx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	acquire := s.tree.RLock
	if access == treeExclusive {
		acquire = s.tree.Lock
	}
	unlock, err := acquire(ctx, s.lock.Timeout)
	if err != nil {
		s.observer.LockContended()
		if errors.Is(err, ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("%w: tree lock: %v", ErrConcurrentModification, err)
	}
	defer unlock()
	return s.runInTx(ctx, fn)
}

// withRetry 锁冲突时按指数退避重试整个事务
func (s *CompensationService) withRetry(ctx context.Context, operation string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backoff := s.lock.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.lock.MaxRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		if attempt == s.lock.MaxRetries {
			break
		}
		logger.Warnw("compensation_retry_on_contention",
			"operation", operation,
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds(),
			"error", err,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func (s *CompensationService) newReferralCode(repo repository.LedgerRepository) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code := s.codeGen()
		existing, err := repo.GetParticipantByCode(code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ErrReferralCodeExhausted
}

// GetEarnings 按时间倒序查询会员收益记录
func (s *CompensationService) GetEarnings(ctx context.Context, participantID uint, page, pageSize int) ([]models.Earning, int64, error) {
	participant, err := s.repo.GetParticipantByID(participantID)
	if err != nil {
		return nil, 0, err
	}
	if participant == nil {
		return nil, 0, ErrParticipantNotFound
	}
	return s.repo.ListEarnings(repository.EarningListFilter{
		Page:          page,
		PageSize:      pageSize,
		BeneficiaryID: participantID,
	})
}

// GetParticipant 获取会员
func (s *CompensationService) GetParticipant(ctx context.Context, participantID uint) (*models.Participant, error) {
	participant, err := s.repo.GetParticipantByID(participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}
	return participant, nil
}

// GetPackage 获取套餐
func (s *CompensationService) GetPackage(ctx context.Context, packageID uint) (*models.Package, error) {
	pkg, err := s.repo.GetPackageByID(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}

// CompensatePackage 按套餐所属会员补跑奖金计算，已计奖的套餐直接返回
func (s *CompensationService) CompensatePackage(ctx context.Context, packageID uint) (*models.Package, error) {
	pkg, err := s.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if err := s.OnPackagePurchased(ctx, pkg.OwnerID, pkg.ID); err != nil {
		return nil, err
	}
	return s.GetPackage(ctx, packageID)
}

// ListParticipants 查询会员列表
func (s *CompensationService) ListParticipants(ctx context.Context, filter repository.ParticipantListFilter) ([]models.Participant, int64, error) {
	return s.repo.ListParticipants(filter)
}

// ListTransactions 查询会员资金流水
func (s *CompensationService) ListTransactions(ctx context.Context, participantID uint, page, pageSize int) ([]models.Transaction, int64, error) {
	return s.repo.ListTransactions(participantID, page, pageSize)
}

// UnlockedLevelsInput 管理员调整解锁层级
type UnlockedLevelsInput struct {
	Levels int
	Reset  bool // 取消人工设置，按直推人数重新计算
}

// SetUnlockedLevels 管理员调整会员解锁层级
func (s *CompensationService) SetUnlockedLevels(ctx context.Context, participantID uint, input UnlockedLevelsInput) (*models.Participant, error) {
	if !input.Reset && (input.Levels < 0 || input.Levels > maxUnlockedLevels) {
		return nil, ErrUnlockedLevelsInvalid
	}
	var updated *models.Participant
	err := s.withRetry(ctx, "set_unlocked_levels", func() error {
		return s.runInTx(ctx, func(etx *engineTx) error {
			participant, err := etx.lockParticipant(participantID)
			if err != nil {
				return err
			}
			if participant == nil {
				return ErrParticipantNotFound
			}
			if input.Reset {
				directs, err := etx.repo.CountDirectReferrals(participant.ID)
				if err != nil {
					return err
				}
				participant.LevelsOverridden = false
				participant.UnlockedLevels = unlockedLevelsFor(directs)
			} else {
				participant.LevelsOverridden = true
				participant.UnlockedLevels = input.Levels
			}
			if err := etx.repo.UpdateParticipant(participant); err != nil {
				return err
			}
			updated = participant
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.ForParticipant(participantID).Infow("unlocked_levels_changed",
		"levels", updated.UnlockedLevels,
		"overridden", updated.LevelsOverridden,
	)
	return updated, nil
}
