package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

// PackageInput 套餐购买参数
type PackageInput struct {
	Tier          string          `json:"tier"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	TotalMonths   int             `json:"total_months"`
	MonthsPaid    int             `json:"months_paid"`
}

func (input PackageInput) validate() error {
	monthly := input.MonthlyAmount.Round(2)
	if !monthly.IsPositive() {
		return fmt.Errorf("%w: monthly amount %s", ErrInvalidAmount, input.MonthlyAmount.String())
	}
	if input.TotalMonths <= 0 {
		return fmt.Errorf("%w: total months must be positive", ErrPackageInvalid)
	}
	if input.MonthsPaid < 0 || input.MonthsPaid > input.TotalMonths {
		return fmt.Errorf("%w: months paid out of range", ErrPackageInvalid)
	}
	return nil
}

func (input PackageInput) toModel(ownerID uint) *models.Package {
	monthsPaid := input.MonthsPaid
	if monthsPaid == 0 {
		monthsPaid = 1
	}
	return &models.Package{
		OwnerID:       ownerID,
		Tier:          input.Tier,
		MonthlyAmount: models.NewMoneyFromDecimal(input.MonthlyAmount),
		TotalMonths:   input.TotalMonths,
		MonthsPaid:    monthsPaid,
		Completed:     monthsPaid >= input.TotalMonths,
	}
}

// OnPackagePurchased 套餐购买后依次发放直推奖、向上传递对碰、发放层级奖
// 三步在同一事务内基于同一套餐快照执行，任一步失败整体回滚并返回 *OrchestrationError。
func (s *CompensationService) OnPackagePurchased(ctx context.Context, buyerID, packageID uint) error {
	return s.withRetry(ctx, "on_package_purchased", func() error {
		return s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
			return s.compensatePackage(etx, buyerID, packageID)
		})
	})
}

func (s *CompensationService) compensatePackage(etx *engineTx, buyerID, packageID uint) error {
	pkg, err := etx.repo.GetPackageByIDForUpdate(packageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return ErrPackageNotFound
	}
	if pkg.OwnerID != buyerID {
		return ErrPackageOwnerMismatch
	}
	if pkg.CompensatedAt != nil {
		logger.ForPackage(packageID, buyerID).Infow("package_already_compensated")
		return nil
	}
	buyer, err := etx.repo.GetParticipantByID(buyerID)
	if err != nil {
		return err
	}
	if buyer == nil {
		return ErrParticipantNotFound
	}
	if !pkg.MonthlyAmount.Decimal.IsPositive() {
		return fmt.Errorf("%w: package %d monthly amount %s", ErrInvalidAmount, pkg.ID, pkg.MonthlyAmount.String())
	}

	snapshot := *pkg
	volume := s.setting.PackageVolume(&snapshot)
	fail := func(step string, amount decimal.Decimal, cause error) error {
		s.observer.OrchestrationFailed(step)
		logger.ForPackage(snapshot.ID, buyerID, "step", step).Errorw("compensation_step_failed",
			"amount", amount.StringFixed(2),
			"error", cause,
		)
		return &OrchestrationError{
			Step:      step,
			BuyerID:   buyerID,
			PackageID: snapshot.ID,
			Amount:    amount,
			Err:       cause,
		}
	}

	if _, err := s.payDirectIncome(etx, buyer, &snapshot); err != nil {
		return fail(constants.CompensationStepDirect, s.directIncomeBase(&snapshot), err)
	}
	packageRef := snapshot.ID
	matches, err := s.propagateBinary(etx, buyer.ID, volume, &packageRef)
	if err != nil {
		return fail(constants.CompensationStepBinary, volume, err)
	}
	levels, err := s.distributeLevelIncome(etx, buyer, &snapshot)
	if err != nil {
		return fail(constants.CompensationStepLevel, s.directIncomeBase(&snapshot), err)
	}

	compensatedAt := etx.now
	pkg.CompensatedAt = &compensatedAt
	if err := etx.repo.UpdatePackage(pkg); err != nil {
		return fail(constants.CompensationStepCommit, volume, err)
	}

	logger.ForPackage(snapshot.ID, buyerID).Infow("package_compensated",
		"volume", volume.StringFixed(2),
		"binary_matches", matches,
		"level_payments", levels,
	)
	return nil
}

// PurchasePackage 为会员创建套餐并计算奖金
// 开启异步计算且配置了队列时，仅落库套餐并投递任务。
func (s *CompensationService) PurchasePackage(ctx context.Context, buyerID uint, input PackageInput) (*models.Package, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	async := s.setting.AsyncPurchase && s.enqueuer != nil

	var created *models.Package
	err := s.withRetry(ctx, "purchase_package", func() error {
		return s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
			buyer, err := etx.repo.GetParticipantByID(buyerID)
			if err != nil {
				return err
			}
			if buyer == nil {
				return ErrParticipantNotFound
			}
			pkg := input.toModel(buyer.ID)
			if err := etx.repo.CreatePackage(pkg); err != nil {
				return err
			}
			created = pkg
			if async {
				return nil
			}
			return s.compensatePackage(etx, buyer.ID, pkg.ID)
		})
	})
	if err != nil {
		return nil, err
	}

	if async {
		if err := s.enqueuer.EnqueuePackagePurchased(buyerID, created.ID); err != nil {
			logger.ForPackage(created.ID, buyerID).Errorw("package_compensation_enqueue_failed", "error", err)
			return created, err
		}
		return created, nil
	}
	return s.reloadPackage(created)
}

func (s *CompensationService) reloadPackage(pkg *models.Package) (*models.Package, error) {
	fresh, err := s.repo.GetPackageByID(pkg.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return pkg, nil
	}
	return fresh, nil
}

// RecordPackagePayment 记录套餐月供，付满后标记完成
func (s *CompensationService) RecordPackagePayment(ctx context.Context, packageID uint, months int) (*models.Package, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: months must be positive", ErrPackageInvalid)
	}
	var updated *models.Package
	err := s.runInTx(ctx, func(etx *engineTx) error {
		pkg, err := etx.repo.GetPackageByIDForUpdate(packageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return ErrPackageNotFound
		}
		if pkg.Completed {
			updated = pkg
			return nil
		}
		pkg.MonthsPaid += months
		if pkg.MonthsPaid >= pkg.TotalMonths {
			pkg.MonthsPaid = pkg.TotalMonths
			pkg.Completed = true
		}
		if err := etx.repo.UpdatePackage(pkg); err != nil {
			return err
		}
		updated = pkg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ClaimCompletionBonus 套餐付满后领取一次完成奖
func (s *CompensationService) ClaimCompletionBonus(ctx context.Context, participantID, packageID uint) (*models.Earning, error) {
	var earning *models.Earning
	err := s.withRetry(ctx, "claim_completion_bonus", func() error {
		return s.runInTx(ctx, func(etx *engineTx) error {
			pkg, err := etx.repo.GetPackageByIDForUpdate(packageID)
			if err != nil {
				return err
			}
			if pkg == nil {
				return ErrPackageNotFound
			}
			if pkg.OwnerID != participantID {
				return ErrPackageOwnerMismatch
			}
			if !pkg.Completed {
				return ErrPackageNotCompleted
			}
			if pkg.BonusClaimed {
				return ErrCompletionBonusClaimed
			}

			owner, err := etx.lockParticipant(participantID)
			if err != nil {
				return err
			}
			if owner == nil {
				return ErrParticipantNotFound
			}
			amount := pkg.MonthlyAmount.Decimal.Mul(s.setting.CompletionBonusRate()).Round(2)
			packageRef := pkg.ID
			earning, err = s.creditEarning(etx, owner, earningDraft{
				Type:        constants.EarningTypeCompletionBonus,
				Amount:      amount,
				PackageID:   &packageRef,
				Reference:   packageReference(pkg.ID, constants.EarningTypeCompletionBonus, 0),
				Description: fmt.Sprintf("完成奖：套餐 %d 已付满 %d 期", pkg.ID, pkg.TotalMonths),
			})
			if err != nil {
				return err
			}
			pkg.BonusClaimed = true
			return etx.repo.UpdatePackage(pkg)
		})
	})
	if err != nil {
		return nil, err
	}
	return earning, nil
}

// IsPartialFailure 判断错误是否为奖金编排中途失败
func IsPartialFailure(err error) bool {
	var orchestrationErr *OrchestrationError
	return errors.As(err, &orchestrationErr)
}
