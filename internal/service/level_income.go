package service

import (
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

const maxUnlockedLevels = constants.MaxUnlockedLevels

// unlockedLevelsFor 每个直推解锁两层，最多 20 层
func unlockedLevelsFor(directReferrals int64) int {
	levels := directReferrals * constants.LevelsPerDirectRefer
	if levels > maxUnlockedLevels {
		return maxUnlockedLevels
	}
	if levels < 0 {
		return 0
	}
	return int(levels)
}

// directIncomeBase 直推奖基数 = 月供 × 直推比例
func (s *CompensationService) directIncomeBase(pkg *models.Package) decimal.Decimal {
	return pkg.MonthlyAmount.Decimal.Mul(s.setting.DirectRate()).Round(2)
}

// payDirectIncome 给买家的推荐人发放直推奖
func (s *CompensationService) payDirectIncome(etx *engineTx, buyer *models.Participant, pkg *models.Package) (*models.Earning, error) {
	if buyer.ReferredBy == nil {
		return nil, nil
	}
	referrer, err := etx.lockParticipant(*buyer.ReferredBy)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		logger.Warnw("direct_referrer_missing",
			"participant_id", buyer.ID,
			"referrer_id", *buyer.ReferredBy,
		)
		return nil, nil
	}
	if referrer.ID == buyer.ID {
		return nil, fmt.Errorf("%w: participant %d refers itself", ErrStructuralCycle, buyer.ID)
	}

	buyerID := buyer.ID
	packageID := pkg.ID
	return s.creditEarning(etx, referrer, earningDraft{
		Type:        constants.EarningTypeDirect,
		Amount:      s.directIncomeBase(pkg),
		RelatedID:   &buyerID,
		PackageID:   &packageID,
		Reference:   packageReference(pkg.ID, constants.EarningTypeDirect, 0),
		Description: fmt.Sprintf("直推奖：会员 %d 购买套餐 %d", buyer.ID, pkg.ID),
	})
}

// distributeLevelIncome 沿推荐链向上发放层级奖
// 直接推荐人只拿直推奖，从推荐人的推荐人开始算第 1 层；未解锁的祖先跳过但继续向上。
func (s *CompensationService) distributeLevelIncome(etx *engineTx, buyer *models.Participant, pkg *models.Package) (int, error) {
	if buyer.ReferredBy == nil {
		return 0, nil
	}
	referrer, err := etx.repo.GetParticipantByID(*buyer.ReferredBy)
	if err != nil {
		return 0, err
	}
	if referrer == nil {
		return 0, nil
	}

	base := s.directIncomeBase(pkg)
	buyerID := buyer.ID
	packageID := pkg.ID
	visited := map[uint]struct{}{buyer.ID: {}, referrer.ID: {}}
	current := referrer
	paid := 0

	for level := 1; level <= maxUnlockedLevels; level++ {
		if current.ReferredBy == nil {
			break
		}
		ancestorID := *current.ReferredBy
		if _, seen := visited[ancestorID]; seen {
			return paid, fmt.Errorf("%w: referral chain of %d revisits %d", ErrStructuralCycle, buyer.ID, ancestorID)
		}
		visited[ancestorID] = struct{}{}

		ancestor, err := etx.repo.GetParticipantByID(ancestorID)
		if err != nil {
			return paid, err
		}
		if ancestor == nil {
			break
		}

		rate := s.setting.LevelRate(level)
		if level <= ancestor.UnlockedLevels && rate.IsPositive() {
			locked, err := etx.lockParticipant(ancestorID)
			if err != nil {
				return paid, err
			}
			if locked == nil {
				break
			}
			earning, err := s.creditEarning(etx, locked, earningDraft{
				Type:        constants.EarningTypeLevel,
				Amount:      base.Mul(rate),
				RelatedID:   &buyerID,
				PackageID:   &packageID,
				Level:       level,
				Reference:   packageReference(pkg.ID, constants.EarningTypeLevel, ancestorID),
				Description: fmt.Sprintf("层级奖：第 %d 层，会员 %d 购买套餐 %d", level, buyer.ID, pkg.ID),
			})
			if err != nil {
				return paid, err
			}
			if earning != nil {
				paid++
			}
			ancestor = locked
		} else {
			logger.ForParticipant(ancestorID, "step", constants.CompensationStepLevel).Debugw("level_income_locked",
				"level", level,
				"unlocked_levels", ancestor.UnlockedLevels,
				"buyer_id", buyer.ID,
			)
		}
		current = ancestor
	}
	return paid, nil
}
