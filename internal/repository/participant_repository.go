package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetParticipantByID 按ID获取会员（已删除会员视为不存在）
func (r *GormLedgerRepository) GetParticipantByID(id uint) (*models.Participant, error) {
	if id == 0 {
		return nil, nil
	}
	var participant models.Participant
	if err := r.db.First(&participant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

// GetParticipantByIDForUpdate 按ID获取会员并加行锁
func (r *GormLedgerRepository) GetParticipantByIDForUpdate(id uint) (*models.Participant, error) {
	if id == 0 {
		return nil, nil
	}
	var participant models.Participant
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&participant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

// GetParticipantByCode 按推荐码获取会员
func (r *GormLedgerRepository) GetParticipantByCode(code string) (*models.Participant, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var participant models.Participant
	if err := r.db.Where("referral_code = ?", normalized).First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

// CreateParticipant 创建会员
func (r *GormLedgerRepository) CreateParticipant(participant *models.Participant) error {
	return r.db.Create(participant).Error
}

// UpdateParticipant 保存会员全部字段
func (r *GormLedgerRepository) UpdateParticipant(participant *models.Participant) error {
	return r.db.Save(participant).Error
}

// RemoveParticipant 软删除会员并记录操作人
func (r *GormLedgerRepository) RemoveParticipant(id, actorID uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"status":     constants.ParticipantStatusRemoved,
		"updated_at": at,
	}
	if actorID != 0 {
		updates["removed_by"] = actorID
	}
	if err := r.db.Model(&models.Participant{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return err
	}
	return r.db.Delete(&models.Participant{}, id).Error
}

// ListParticipants 查询会员列表
func (r *GormLedgerRepository) ListParticipants(filter ParticipantListFilter) ([]models.Participant, int64, error) {
	query := r.db.Model(&models.Participant{})
	if role := strings.TrimSpace(filter.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if filter.ReferredBy != 0 {
		query = query.Where("referred_by = ?", filter.ReferredBy)
	}
	if cond, args := keywordCondition(r.db, filter.Keyword, "name", "referral_code"); cond != "" {
		query = query.Where(cond, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Participant
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListActiveMemberIDs 查询全部未删除的普通会员ID
func (r *GormLedgerRepository) ListActiveMemberIDs() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Participant{}).
		Where("role <> ? AND status = ?", constants.ParticipantRoleAdmin, constants.ParticipantStatusActive).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountDirectReferrals 统计直推人数
func (r *GormLedgerRepository) CountDirectReferrals(referrerID uint) (int64, error) {
	if referrerID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.Participant{}).Where("referred_by = ?", referrerID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// ClearReferrer 清空引用指定推荐人的推荐关系，返回受影响会员ID
func (r *GormLedgerRepository) ClearReferrer(referrerID uint, at time.Time) ([]uint, error) {
	if referrerID == 0 {
		return []uint{}, nil
	}
	var ids []uint
	if err := r.db.Model(&models.Participant{}).Where("referred_by = ?", referrerID).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []uint{}, nil
	}
	if err := r.db.Model(&models.Participant{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"referred_by": nil,
			"updated_at":  at,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
