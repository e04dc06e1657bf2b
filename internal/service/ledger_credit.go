package service

import (
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// earningDraft 待入账收益
type earningDraft struct {
	Type         string
	Amount       decimal.Decimal
	RelatedID    *uint
	PackageID    *uint
	Level        int
	MatchedLeft  decimal.Decimal
	MatchedRight decimal.Decimal
	Reference    string
	Description  string
}

func packageReference(packageID uint, kind string, participantID uint) string {
	if participantID == 0 {
		return fmt.Sprintf("pkg:%d:%s", packageID, kind)
	}
	return fmt.Sprintf("pkg:%d:%s:%d", packageID, kind, participantID)
}

func standaloneReference(kind string) string {
	return kind + ":" + uuid.NewString()
}

// creditEarning 写入收益、资金流水并更新会员余额
// participant 必须是当前事务内加锁后读取的最新数据；同一幂等键重复入账直接跳过。
func (s *CompensationService) creditEarning(etx *engineTx, participant *models.Participant, draft earningDraft) (*models.Earning, error) {
	amount := draft.Amount.Round(2)
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: earning %s amount %s", ErrInvalidAmount, draft.Type, amount.String())
	}
	if amount.IsZero() && draft.MatchedLeft.IsZero() && draft.MatchedRight.IsZero() {
		return nil, nil
	}
	if draft.Reference == "" {
		draft.Reference = standaloneReference(draft.Type)
	}
	existing, err := etx.repo.GetEarningByReference(draft.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.ForParticipant(participant.ID).Infow("earning_reference_exists",
			"reference", draft.Reference,
			"earning_id", existing.ID,
		)
		return existing, nil
	}

	earning := &models.Earning{
		BeneficiaryID:        participant.ID,
		Amount:               models.NewMoneyFromDecimal(amount),
		Type:                 draft.Type,
		RelatedParticipantID: draft.RelatedID,
		PackageID:            draft.PackageID,
		Level:                draft.Level,
		MatchedLeft:          models.NewMoneyFromDecimal(draft.MatchedLeft),
		MatchedRight:         models.NewMoneyFromDecimal(draft.MatchedRight),
		Reference:            draft.Reference,
		Description:          draft.Description,
		CreatedAt:            etx.now,
	}
	if err := etx.repo.CreateEarning(earning); err != nil {
		return nil, err
	}

	before := participant.WithdrawableAmount
	participant.TotalEarnings = participant.TotalEarnings.Add(earning.Amount)
	participant.WithdrawableAmount = participant.WithdrawableAmount.Add(earning.Amount)
	s.latchAutoPool(participant)

	if amount.IsPositive() {
		earningID := earning.ID
		txn := &models.Transaction{
			ParticipantID: participant.ID,
			Type:          constants.TransactionTypeEarning,
			Direction:     constants.TransactionDirectionIn,
			Amount:        earning.Amount,
			BalanceBefore: before,
			BalanceAfter:  participant.WithdrawableAmount,
			EarningID:     &earningID,
			Remark:        draft.Description,
			CreatedAt:     etx.now,
		}
		if err := etx.repo.CreateTransaction(txn); err != nil {
			return nil, err
		}
	}
	if err := etx.repo.UpdateParticipant(participant); err != nil {
		return nil, err
	}

	s.observer.EarningCredited(draft.Type, amount)
	logger.ForParticipant(participant.ID, "step", draft.Type).Debugw("earning_credited",
		"amount", amount.StringFixed(2),
		"reference", draft.Reference,
		"total_earnings", participant.TotalEarnings.String(),
	)
	return earning, nil
}

// latchAutoPool 累计收益达到门槛后打开自动池资格，之后不再关闭
func (s *CompensationService) latchAutoPool(participant *models.Participant) {
	if participant.AutoPoolEligible {
		return
	}
	threshold := s.setting.AutoPoolThresholdAmount()
	if threshold.IsPositive() && participant.TotalEarnings.Decimal.GreaterThanOrEqual(threshold) {
		participant.AutoPoolEligible = true
		logger.ForParticipant(participant.ID).Infow("auto_pool_latched",
			"total_earnings", participant.TotalEarnings.String(),
			"threshold", threshold.StringFixed(2),
		)
	}
}
