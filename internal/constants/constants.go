package constants

// 安置方向常量
const (
	SideLeft  = "left"
	SideRight = "right"
)

// 会员角色常量
const (
	ParticipantRoleMember = "member"
	ParticipantRoleAdmin  = "admin"
)

// 会员状态常量
const (
	ParticipantStatusActive  = "active"
	ParticipantStatusRemoved = "removed"
)

// 收益类型常量
const (
	EarningTypeDirect          = "direct"
	EarningTypeBinary          = "binary"
	EarningTypeLevel           = "level"
	EarningTypeAutoPool        = "autopool"
	EarningTypeCompletionBonus = "completion_bonus"
)

// 资金流水类型常量
const (
	TransactionTypeEarning        = "earning"
	TransactionTypeWithdrawal     = "withdrawal"
	TransactionTypeWithdrawReturn = "withdrawal_return"
	TransactionTypeDeduction      = "deduction"
)

// 资金流水方向常量
const (
	TransactionDirectionIn  = "in"
	TransactionDirectionOut = "out"
)

// 提现状态常量
const (
	WithdrawalStatusPendingReview = "pending_review"
	WithdrawalStatusRejected      = "rejected"
	WithdrawalStatusPaid          = "paid"
)

// 提现审核动作常量
const (
	WithdrawalActionReject = "reject"
	WithdrawalActionPay    = "pay"
)

// 对碰策略常量
const (
	MatchingPolicyPairMin        = "pair_min"
	MatchingPolicyMinDouble      = "min_double"
	MatchingPolicyWeakerSide2To1 = "weaker_side_2to1"
)

// 业绩口径常量
const (
	VolumeBasisMonthly        = "monthly"
	VolumeBasisCommittedTotal = "committed_total"
)

// 奖金计算步骤常量
const (
	CompensationStepDirect = "direct"
	CompensationStepBinary = "binary"
	CompensationStepLevel  = "level"
	CompensationStepCommit = "commit"
)

// 级别上限
const (
	MaxUnlockedLevels    = 20
	LevelsPerDirectRefer = 2
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 任务类型常量
const (
	TaskPackagePurchased = "compensation:package_purchased"
	TaskRecalculateAll   = "compensation:recalculate_all"
)
