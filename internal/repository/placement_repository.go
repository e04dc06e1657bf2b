package repository

import (
	"errors"

	"github.com/mlm-engine/internal/models"

	"gorm.io/gorm"
)

// GetEdge 获取会员的安置关系
func (r *GormLedgerRepository) GetEdge(participantID uint) (*models.PlacementEdge, error) {
	if participantID == 0 {
		return nil, nil
	}
	var edge models.PlacementEdge
	if err := r.db.Where("participant_id = ?", participantID).First(&edge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// ListChildEdges 查询直接下级安置关系，左区在前
func (r *GormLedgerRepository) ListChildEdges(parentID uint) ([]models.PlacementEdge, error) {
	if parentID == 0 {
		return []models.PlacementEdge{}, nil
	}
	var rows []models.PlacementEdge
	if err := r.db.Where("parent_id = ?", parentID).
		Order("side asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateEdge 创建安置关系
func (r *GormLedgerRepository) CreateEdge(edge *models.PlacementEdge) error {
	return r.db.Create(edge).Error
}

// UpdateEdge 更新安置关系
func (r *GormLedgerRepository) UpdateEdge(edge *models.PlacementEdge) error {
	return r.db.Save(edge).Error
}

// DeleteEdge 删除会员的安置关系
func (r *GormLedgerRepository) DeleteEdge(participantID uint) error {
	if participantID == 0 {
		return nil
	}
	return r.db.Where("participant_id = ?", participantID).Delete(&models.PlacementEdge{}).Error
}
