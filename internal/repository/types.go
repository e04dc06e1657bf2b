package repository

import "time"

// ParticipantListFilter 查询会员列表的过滤条件
type ParticipantListFilter struct {
	Page       int
	PageSize   int
	Keyword    string
	Role       string
	ReferredBy uint
}

// EarningListFilter 查询收益记录的过滤条件
type EarningListFilter struct {
	Page          int
	PageSize      int
	BeneficiaryID uint
	Type          string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}
