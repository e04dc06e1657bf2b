package models

import "time"

// Earning 收益台账记录，只追加不修改
type Earning struct {
	ID                   uint       `gorm:"primarykey" json:"id"`                                       // 主键
	BeneficiaryID        uint       `gorm:"not null;index" json:"beneficiary_id"`                       // 收益人
	Amount               Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`        // 金额
	Type                 string     `gorm:"type:varchar(32);not null;index" json:"type"`                // 收益类型
	RelatedParticipantID *uint      `gorm:"index" json:"related_participant_id,omitempty"`              // 产生收益的会员
	PackageID            *uint      `gorm:"index" json:"package_id,omitempty"`                          // 关联套餐
	Level                int        `gorm:"not null;default:0" json:"level,omitempty"`                  // 层级奖对应层级
	MatchedLeft          Money      `gorm:"type:decimal(20,2);not null;default:0" json:"matched_left"`  // 对碰消耗左区业绩
	MatchedRight         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"matched_right"` // 对碰消耗右区业绩
	Reference            string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"reference"`    // 幂等键
	Description          string     `gorm:"type:varchar(255)" json:"description"`                       // 描述
	InvalidatedAt        *time.Time `gorm:"index" json:"invalidated_at,omitempty"`                      // 冲正失效时间
	ArchivedAt           *time.Time `gorm:"index" json:"archived_at,omitempty"`                         // 归档时间
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
}

// TableName 指定表名
func (Earning) TableName() string {
	return "earnings"
}
