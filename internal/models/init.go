package models

import (
	"strings"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
)

const defaultOperatorCode = "OPERATOR"

// InitOperatorAccount 初始化平台运营账号（管理角色，不参与奖金计算且不可删除）
// 已存在时返回现有账号。
func InitOperatorAccount(name string) (*Participant, error) {
	var existing Participant
	err := DB.Where("role = ?", constants.ParticipantRoleAdmin).Order("id asc").Limit(1).Find(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing.ID != 0 {
		return &existing, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "operator"
	}
	now := time.Now()
	operator := Participant{
		Name:         name,
		ReferralCode: defaultOperatorCode,
		Role:         constants.ParticipantRoleAdmin,
		Status:       constants.ParticipantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := DB.Create(&operator).Error; err != nil {
		return nil, err
	}
	logger.Warnw("operator_account_created", "participant_id", operator.ID, "name", name)
	return &operator, nil
}
