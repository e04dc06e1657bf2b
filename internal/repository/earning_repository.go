package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// validEarnings 未归档且未冲正的收益
func (r *GormLedgerRepository) validEarnings() *gorm.DB {
	return r.db.Model(&models.Earning{}).Where("archived_at IS NULL AND invalidated_at IS NULL")
}

// CreateEarning 追加收益记录
func (r *GormLedgerRepository) CreateEarning(earning *models.Earning) error {
	return r.db.Create(earning).Error
}

// GetEarningByReference 按幂等键获取收益记录
func (r *GormLedgerRepository) GetEarningByReference(reference string) (*models.Earning, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var earning models.Earning
	if err := r.db.Where("reference = ?", reference).First(&earning).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &earning, nil
}

// ListEarnings 按时间倒序查询收益记录
func (r *GormLedgerRepository) ListEarnings(filter EarningListFilter) ([]models.Earning, int64, error) {
	query := r.db.Model(&models.Earning{}).Where("archived_at IS NULL")
	if filter.BeneficiaryID != 0 {
		query = query.Where("beneficiary_id = ?", filter.BeneficiaryID)
	}
	if earningType := strings.TrimSpace(filter.Type); earningType != "" {
		query = query.Where("type = ?", earningType)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Earning
	if err := query.Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// HasEarningOfType 是否已存在指定类型的有效收益
func (r *GormLedgerRepository) HasEarningOfType(beneficiaryID uint, earningType string) (bool, error) {
	if beneficiaryID == 0 {
		return false, nil
	}
	var total int64
	if err := r.validEarnings().
		Where("beneficiary_id = ? AND type = ?", beneficiaryID, earningType).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// SumEarnings 汇总有效收益
func (r *GormLedgerRepository) SumEarnings(beneficiaryID uint) (decimal.Decimal, error) {
	if beneficiaryID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.validEarnings().
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("beneficiary_id = ?", beneficiaryID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// SumBinaryConsumption 汇总对碰已消耗的左右区业绩
func (r *GormLedgerRepository) SumBinaryConsumption(beneficiaryID uint) (decimal.Decimal, decimal.Decimal, error) {
	if beneficiaryID == 0 {
		return decimal.Zero, decimal.Zero, nil
	}
	var row struct {
		Left  decimal.Decimal `gorm:"column:matched_left_total"`
		Right decimal.Decimal `gorm:"column:matched_right_total"`
	}
	if err := r.validEarnings().
		Select("COALESCE(SUM(matched_left), 0) AS matched_left_total, COALESCE(SUM(matched_right), 0) AS matched_right_total").
		Where("beneficiary_id = ? AND type = ?", beneficiaryID, constants.EarningTypeBinary).
		Scan(&row).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return row.Left.Round(2), row.Right.Round(2), nil
}

// ArchiveEarningsByBeneficiary 归档会员收益记录
func (r *GormLedgerRepository) ArchiveEarningsByBeneficiary(beneficiaryID uint, at time.Time) (int64, error) {
	if beneficiaryID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Earning{}).
		Where("beneficiary_id = ? AND archived_at IS NULL", beneficiaryID).
		Update("archived_at", at)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
