package models

import (
	"time"

	"github.com/mlm-engine/internal/constants"

	"gorm.io/gorm"
)

// Participant 会员档案与奖金状态
type Participant struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                             // 主键
	Name               string         `gorm:"type:varchar(128);not null;default:''" json:"name"`                // 名称
	ReferralCode       string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"referral_code"`       // 推荐码
	ReferredBy         *uint          `gorm:"index" json:"referred_by,omitempty"`                               // 推荐人ID（推荐关系）
	Role               string         `gorm:"type:varchar(20);not null;default:'member'" json:"role"`           // 角色
	Status             string         `gorm:"type:varchar(20);not null;index" json:"status"`                    // 状态
	LeftTeamCount      int64          `gorm:"not null;default:0" json:"left_team_count"`                        // 左区人数
	RightTeamCount     int64          `gorm:"not null;default:0" json:"right_team_count"`                       // 右区人数
	LeftCarryForward   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"left_carry_forward"`  // 左区结转业绩
	RightCarryForward  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"right_carry_forward"` // 右区结转业绩
	LeftWrittenOff     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"left_written_off"`    // 左区核销业绩（已对碰但来源已归档）
	RightWrittenOff    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"right_written_off"`   // 右区核销业绩
	TotalEarnings      Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`      // 累计收益
	WithdrawableAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"withdrawable_amount"` // 可提现金额
	UnlockedLevels     int            `gorm:"not null;default:0" json:"unlocked_levels"`                        // 已解锁层级
	LevelsOverridden   bool           `gorm:"not null;default:false" json:"levels_overridden"`                  // 层级是否由管理员锁定
	AutoPoolEligible   bool           `gorm:"not null;default:false" json:"auto_pool_eligible"`                 // 自动池资格（单向）
	RemovedBy          *uint          `json:"removed_by,omitempty"`                                             // 删除操作人
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                          // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                                   // 软删除时间
}

// TableName 指定表名
func (Participant) TableName() string {
	return "participants"
}

// IsAdmin 是否为管理角色
func (p *Participant) IsAdmin() bool {
	return p != nil && p.Role == constants.ParticipantRoleAdmin
}
