package service

import (
	"context"
	"strings"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

// WithdrawalApplyInput 提现申请参数
type WithdrawalApplyInput struct {
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel"`
	Account string          `json:"account"`
}

// WithdrawalReviewInput 提现审核参数
type WithdrawalReviewInput struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// RequestWithdrawal 申请提现，申请金额立即从可提现余额中冻结
func (s *CompensationService) RequestWithdrawal(ctx context.Context, participantID uint, input WithdrawalApplyInput) (*models.Withdrawal, error) {
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrWithdrawalAmountInvalid
	}
	minAmount := decimal.NewFromFloat(s.setting.MinWithdrawAmount).Round(2)
	if amount.LessThan(minAmount) {
		return nil, ErrWithdrawalAmountInvalid
	}
	channel := strings.TrimSpace(input.Channel)
	account := strings.TrimSpace(input.Account)
	if channel == "" || account == "" {
		return nil, ErrWithdrawalChannelInvalid
	}

	var created *models.Withdrawal
	err := s.withRetry(ctx, "request_withdrawal", func() error {
		return s.runInTx(ctx, func(etx *engineTx) error {
			participant, err := etx.lockParticipant(participantID)
			if err != nil {
				return err
			}
			if participant == nil {
				return ErrParticipantNotFound
			}
			if participant.WithdrawableAmount.Decimal.LessThan(amount) {
				return ErrWithdrawalInsufficient
			}

			withdrawal := &models.Withdrawal{
				ParticipantID: participant.ID,
				Amount:        models.NewMoneyFromDecimal(amount),
				Channel:       channel,
				Account:       account,
				Status:        constants.WithdrawalStatusPendingReview,
				CreatedAt:     etx.now,
				UpdatedAt:     etx.now,
			}
			if err := etx.repo.CreateWithdrawal(withdrawal); err != nil {
				return err
			}

			before := participant.WithdrawableAmount
			participant.WithdrawableAmount = participant.WithdrawableAmount.SubFloorZero(withdrawal.Amount)
			withdrawalID := withdrawal.ID
			if err := etx.repo.CreateTransaction(&models.Transaction{
				ParticipantID: participant.ID,
				Type:          constants.TransactionTypeWithdrawal,
				Direction:     constants.TransactionDirectionOut,
				Amount:        withdrawal.Amount,
				BalanceBefore: before,
				BalanceAfter:  participant.WithdrawableAmount,
				WithdrawalID:  &withdrawalID,
				Remark:        "提现申请",
				CreatedAt:     etx.now,
			}); err != nil {
				return err
			}
			if err := etx.repo.UpdateParticipant(participant); err != nil {
				return err
			}
			created = withdrawal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.ForParticipant(participantID).Infow("withdrawal_requested",
		"withdrawal_id", created.ID,
		"amount", created.Amount.String(),
		"channel", created.Channel,
	)
	return created, nil
}

// ReviewWithdrawal 审核提现：打款或驳回，驳回时退回可提现余额
func (s *CompensationService) ReviewWithdrawal(ctx context.Context, withdrawalID, actorID uint, input WithdrawalReviewInput) (*models.Withdrawal, error) {
	if actorID == 0 {
		return nil, ErrActorRequired
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action != constants.WithdrawalActionPay && action != constants.WithdrawalActionReject {
		return nil, ErrWithdrawalActionInvalid
	}

	var updated *models.Withdrawal
	err := s.withRetry(ctx, "review_withdrawal", func() error {
		return s.runInTx(ctx, func(etx *engineTx) error {
			withdrawal, err := etx.repo.GetWithdrawalByIDForUpdate(withdrawalID)
			if err != nil {
				return err
			}
			if withdrawal == nil {
				return ErrWithdrawalNotFound
			}
			if withdrawal.Status != constants.WithdrawalStatusPendingReview {
				return ErrWithdrawalStatusInvalid
			}

			processedBy := actorID
			processedAt := etx.now
			withdrawal.ProcessedBy = &processedBy
			withdrawal.ProcessedAt = &processedAt
			withdrawal.UpdatedAt = etx.now

			if action == constants.WithdrawalActionPay {
				withdrawal.Status = constants.WithdrawalStatusPaid
				if err := etx.repo.UpdateWithdrawal(withdrawal); err != nil {
					return err
				}
				updated = withdrawal
				return nil
			}

			withdrawal.Status = constants.WithdrawalStatusRejected
			withdrawal.RejectReason = strings.TrimSpace(input.Reason)
			if err := etx.repo.UpdateWithdrawal(withdrawal); err != nil {
				return err
			}

			participant, err := etx.lockParticipant(withdrawal.ParticipantID)
			if err != nil {
				return err
			}
			if participant == nil {
				return ErrParticipantNotFound
			}
			before := participant.WithdrawableAmount
			participant.WithdrawableAmount = participant.WithdrawableAmount.Add(withdrawal.Amount)
			id := withdrawal.ID
			if err := etx.repo.CreateTransaction(&models.Transaction{
				ParticipantID: participant.ID,
				Type:          constants.TransactionTypeWithdrawReturn,
				Direction:     constants.TransactionDirectionIn,
				Amount:        withdrawal.Amount,
				BalanceBefore: before,
				BalanceAfter:  participant.WithdrawableAmount,
				WithdrawalID:  &id,
				Remark:        "提现驳回退回",
				CreatedAt:     etx.now,
			}); err != nil {
				return err
			}
			if err := etx.repo.UpdateParticipant(participant); err != nil {
				return err
			}
			updated = withdrawal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.ForParticipant(updated.ParticipantID).Infow("withdrawal_reviewed",
		"withdrawal_id", updated.ID,
		"status", updated.Status,
		"actor_id", actorID,
	)
	return updated, nil
}
