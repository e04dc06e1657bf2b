package models

import "time"

// Transaction 余额变动审计流水
type Transaction struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                        // 主键
	ParticipantID uint       `gorm:"not null;index" json:"participant_id"`                        // 会员ID
	Type          string     `gorm:"type:varchar(32);not null;index" json:"type"`                 // 流水类型
	Direction     string     `gorm:"type:varchar(8);not null" json:"direction"`                   // 方向 in/out
	Amount        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`         // 金额
	BalanceBefore Money      `gorm:"type:decimal(20,2);not null;default:0" json:"balance_before"` // 变动前可提现
	BalanceAfter  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"`  // 变动后可提现
	EarningID     *uint      `gorm:"index" json:"earning_id,omitempty"`                           // 关联收益
	WithdrawalID  *uint      `gorm:"index" json:"withdrawal_id,omitempty"`                        // 关联提现
	Remark        string     `gorm:"type:varchar(255)" json:"remark"`                             // 备注
	ArchivedAt    *time.Time `gorm:"index" json:"archived_at,omitempty"`                          // 归档时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}
