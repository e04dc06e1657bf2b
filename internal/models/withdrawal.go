package models

import "time"

// Withdrawal 提现申请
type Withdrawal struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                // 主键
	ParticipantID uint       `gorm:"not null;index" json:"participant_id"`                // 会员ID
	Amount        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 提现金额
	Channel       string     `gorm:"type:varchar(64);not null" json:"channel"`            // 提现渠道
	Account       string     `gorm:"type:varchar(255);not null" json:"account"`           // 收款账号
	Status        string     `gorm:"type:varchar(32);not null;index" json:"status"`       // 状态
	RejectReason  string     `gorm:"type:varchar(255)" json:"reject_reason"`              // 驳回原因
	ProcessedBy   *uint      `json:"processed_by,omitempty"`                              // 处理人
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`                              // 处理时间
	ArchivedAt    *time.Time `gorm:"index" json:"archived_at,omitempty"`                  // 归档时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (Withdrawal) TableName() string {
	return "withdrawals"
}
