package service

import (
	"context"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

// RecalculateResult 全量重算结果
type RecalculateResult struct {
	UpdatedCount int `json:"updated_count"`
	ChangedCount int `json:"changed_count"`
}

// RecalculateAll 按源数据重算全部普通会员的人数、结转、收益与解锁层级
func (s *CompensationService) RecalculateAll(ctx context.Context) (*RecalculateResult, error) {
	var result *RecalculateResult
	err := s.withRetry(ctx, "recalculate_all", func() error {
		return s.runInTreeTx(ctx, treeExclusive, func(etx *engineTx) error {
			ids, err := etx.repo.ListActiveMemberIDs()
			if err != nil {
				return err
			}
			current := &RecalculateResult{}
			for _, id := range ids {
				changed, err := s.recountParticipant(etx, id)
				if err != nil {
					return err
				}
				current.UpdatedCount++
				if changed {
					current.ChangedCount++
				}
			}
			result = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("recalculate_all_finished",
		"updated_count", result.UpdatedCount,
		"changed_count", result.ChangedCount,
	)
	return result, nil
}

// recountParticipant 从源数据重算单个会员，返回是否有变化
// 结转 = 传递层数内该侧已计奖业绩 - 该侧对碰已消耗业绩 + 该侧核销业绩。
func (s *CompensationService) recountParticipant(etx *engineTx, participantID uint) (bool, error) {
	participant, err := etx.lockParticipant(participantID)
	if err != nil {
		return false, err
	}
	if participant == nil {
		return false, nil
	}

	leftNodes, err := walkSide(etx.repo, participantID, constants.SideLeft, 0)
	if err != nil {
		return false, err
	}
	rightNodes, err := walkSide(etx.repo, participantID, constants.SideRight, 0)
	if err != nil {
		return false, err
	}
	leftVolume, err := s.teamVolume(etx.repo, nodeIDs(withinDepth(leftNodes, s.setting.PropagationDepth)))
	if err != nil {
		return false, err
	}
	rightVolume, err := s.teamVolume(etx.repo, nodeIDs(withinDepth(rightNodes, s.setting.PropagationDepth)))
	if err != nil {
		return false, err
	}
	matchedLeft, matchedRight, err := etx.repo.SumBinaryConsumption(participantID)
	if err != nil {
		return false, err
	}
	total, err := etx.repo.SumEarnings(participantID)
	if err != nil {
		return false, err
	}
	withdrawn, err := etx.repo.SumOpenWithdrawals(participantID)
	if err != nil {
		return false, err
	}

	next := *participant
	next.LeftTeamCount = int64(len(leftNodes))
	next.RightTeamCount = int64(len(rightNodes))
	leftCarry, leftWrittenOff := reconcileCarry(leftVolume, matchedLeft, participant.LeftWrittenOff.Decimal)
	rightCarry, rightWrittenOff := reconcileCarry(rightVolume, matchedRight, participant.RightWrittenOff.Decimal)
	next.LeftCarryForward = models.NewMoneyFromDecimal(leftCarry)
	next.RightCarryForward = models.NewMoneyFromDecimal(rightCarry)
	next.LeftWrittenOff = models.NewMoneyFromDecimal(leftWrittenOff)
	next.RightWrittenOff = models.NewMoneyFromDecimal(rightWrittenOff)
	next.TotalEarnings = models.NewMoneyFromDecimal(total)
	next.WithdrawableAmount = next.TotalEarnings.SubFloorZero(models.NewMoneyFromDecimal(withdrawn))
	if !next.LevelsOverridden {
		directs, err := etx.repo.CountDirectReferrals(participantID)
		if err != nil {
			return false, err
		}
		next.UnlockedLevels = unlockedLevelsFor(directs)
	}
	s.latchAutoPool(&next)

	if !countersDiffer(participant, &next) {
		return false, nil
	}
	if err := etx.repo.UpdateParticipant(&next); err != nil {
		return false, err
	}
	logger.ForParticipant(participantID).Infow("participant_recounted",
		"left_team_count", next.LeftTeamCount,
		"right_team_count", next.RightTeamCount,
		"left_carry_forward", next.LeftCarryForward.String(),
		"right_carry_forward", next.RightCarryForward.String(),
		"left_written_off", next.LeftWrittenOff.String(),
		"right_written_off", next.RightWrittenOff.String(),
		"total_earnings", next.TotalEarnings.String(),
		"unlocked_levels", next.UnlockedLevels,
	)
	return true, nil
}

// reconcileCarry 计算一侧结转，返回结转与新的核销额
// 已消耗业绩超出在册业绩时（来源套餐随会员删除归档），差额一次性计入核销，之后的重算不再重复扣减。
func reconcileCarry(volume, matched, writtenOff decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	carry := volume.Sub(matched).Add(writtenOff)
	if carry.IsNegative() {
		return decimal.Zero, writtenOff.Sub(carry)
	}
	return carry, writtenOff
}

func withinDepth(nodes []downlineNode, maxDepth int) []downlineNode {
	if maxDepth <= 0 {
		return nodes
	}
	filtered := make([]downlineNode, 0, len(nodes))
	for _, node := range nodes {
		if node.Depth <= maxDepth {
			filtered = append(filtered, node)
		}
	}
	return filtered
}

func countersDiffer(before, after *models.Participant) bool {
	return before.LeftTeamCount != after.LeftTeamCount ||
		before.RightTeamCount != after.RightTeamCount ||
		!before.LeftCarryForward.Decimal.Equal(after.LeftCarryForward.Decimal) ||
		!before.RightCarryForward.Decimal.Equal(after.RightCarryForward.Decimal) ||
		!before.LeftWrittenOff.Decimal.Equal(after.LeftWrittenOff.Decimal) ||
		!before.RightWrittenOff.Decimal.Equal(after.RightWrittenOff.Decimal) ||
		!before.TotalEarnings.Decimal.Equal(after.TotalEarnings.Decimal) ||
		!before.WithdrawableAmount.Decimal.Equal(after.WithdrawableAmount.Decimal) ||
		before.UnlockedLevels != after.UnlockedLevels ||
		before.AutoPoolEligible != after.AutoPoolEligible
}
