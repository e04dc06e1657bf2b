package repository

import (
	"errors"
	"time"

	"github.com/mlm-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePackage 创建套餐
func (r *GormLedgerRepository) CreatePackage(pkg *models.Package) error {
	return r.db.Create(pkg).Error
}

// GetPackageByID 按ID获取未归档套餐
func (r *GormLedgerRepository) GetPackageByID(id uint) (*models.Package, error) {
	if id == 0 {
		return nil, nil
	}
	var pkg models.Package
	if err := r.db.Where("archived_at IS NULL").First(&pkg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pkg, nil
}

// GetPackageByIDForUpdate 按ID获取套餐并加锁
func (r *GormLedgerRepository) GetPackageByIDForUpdate(id uint) (*models.Package, error) {
	if id == 0 {
		return nil, nil
	}
	var pkg models.Package
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("archived_at IS NULL").
		First(&pkg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pkg, nil
}

// UpdatePackage 更新套餐
func (r *GormLedgerRepository) UpdatePackage(pkg *models.Package) error {
	return r.db.Save(pkg).Error
}

// ListCompensatedPackagesByOwners 查询已完成奖金计算的套餐
func (r *GormLedgerRepository) ListCompensatedPackagesByOwners(ownerIDs []uint) ([]models.Package, error) {
	if len(ownerIDs) == 0 {
		return []models.Package{}, nil
	}
	var rows []models.Package
	if err := r.db.Where("owner_id IN ? AND compensated_at IS NOT NULL AND archived_at IS NULL", ownerIDs).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ArchivePackagesByOwner 归档会员名下套餐
func (r *GormLedgerRepository) ArchivePackagesByOwner(ownerID uint, at time.Time) (int64, error) {
	if ownerID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Package{}).
		Where("owner_id = ? AND archived_at IS NULL", ownerID).
		Updates(map[string]interface{}{
			"archived_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
