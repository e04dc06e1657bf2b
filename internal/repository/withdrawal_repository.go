package repository

import (
	"errors"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateTransaction 追加资金流水
func (r *GormLedgerRepository) CreateTransaction(txn *models.Transaction) error {
	return r.db.Create(txn).Error
}

// ListTransactions 按时间倒序查询资金流水
func (r *GormLedgerRepository) ListTransactions(participantID uint, page, pageSize int) ([]models.Transaction, int64, error) {
	query := r.db.Model(&models.Transaction{}).Where("participant_id = ? AND archived_at IS NULL", participantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, page, pageSize)

	var rows []models.Transaction
	if err := query.Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ArchiveTransactionsByParticipant 归档会员资金流水
func (r *GormLedgerRepository) ArchiveTransactionsByParticipant(participantID uint, at time.Time) (int64, error) {
	if participantID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Transaction{}).
		Where("participant_id = ? AND archived_at IS NULL", participantID).
		Update("archived_at", at)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateWithdrawal 创建提现申请
func (r *GormLedgerRepository) CreateWithdrawal(withdrawal *models.Withdrawal) error {
	return r.db.Create(withdrawal).Error
}

// GetWithdrawalByID 获取提现申请
func (r *GormLedgerRepository) GetWithdrawalByID(id uint) (*models.Withdrawal, error) {
	if id == 0 {
		return nil, nil
	}
	var withdrawal models.Withdrawal
	if err := r.db.Where("archived_at IS NULL").First(&withdrawal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &withdrawal, nil
}

// GetWithdrawalByIDForUpdate 获取提现申请并加锁
func (r *GormLedgerRepository) GetWithdrawalByIDForUpdate(id uint) (*models.Withdrawal, error) {
	if id == 0 {
		return nil, nil
	}
	var withdrawal models.Withdrawal
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("archived_at IS NULL").
		First(&withdrawal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &withdrawal, nil
}

// UpdateWithdrawal 更新提现申请
func (r *GormLedgerRepository) UpdateWithdrawal(withdrawal *models.Withdrawal) error {
	return r.db.Save(withdrawal).Error
}

// SumOpenWithdrawals 汇总未驳回的提现金额（待审核 + 已打款）
func (r *GormLedgerRepository) SumOpenWithdrawals(participantID uint) (decimal.Decimal, error) {
	if participantID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("participant_id = ? AND archived_at IS NULL AND status IN ?", participantID, []string{
			constants.WithdrawalStatusPendingReview,
			constants.WithdrawalStatusPaid,
		}).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// ArchiveWithdrawalsByParticipant 归档会员提现申请
func (r *GormLedgerRepository) ArchiveWithdrawalsByParticipant(participantID uint, at time.Time) (int64, error) {
	if participantID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Withdrawal{}).
		Where("participant_id = ? AND archived_at IS NULL", participantID).
		Updates(map[string]interface{}{
			"archived_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
