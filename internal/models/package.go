package models

import "time"

// Package 会员订购的周期套餐
type Package struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                        // 主键
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`                              // 所属会员
	Tier          string     `gorm:"type:varchar(32);not null;default:''" json:"tier"`            // 套餐档位
	MonthlyAmount Money      `gorm:"type:decimal(20,2);not null;default:0" json:"monthly_amount"` // 月供金额
	TotalMonths   int        `gorm:"not null;default:0" json:"total_months"`                      // 承诺期数
	MonthsPaid    int        `gorm:"not null;default:0" json:"months_paid"`                       // 已付期数
	Completed     bool       `gorm:"not null;default:false" json:"completed"`                     // 是否已完成
	BonusClaimed  bool       `gorm:"not null;default:false" json:"bonus_claimed"`                 // 完成奖是否已领取
	CompensatedAt *time.Time `gorm:"index" json:"compensated_at,omitempty"`                       // 奖金计算完成时间
	ArchivedAt    *time.Time `gorm:"index" json:"archived_at,omitempty"`                          // 归档时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                                  // 更新时间
}

// TableName 指定表名
func (Package) TableName() string {
	return "packages"
}
