package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 奖金引擎错误
var (
	ErrParticipantNotFound       = errors.New("会员不存在")
	ErrSponsorNotFound           = errors.New("推荐人不存在")
	ErrPackageNotFound           = errors.New("套餐不存在")
	ErrPackageOwnerMismatch      = errors.New("套餐不属于该会员")
	ErrPackageInvalid            = errors.New("套餐参数无效")
	ErrPackageNotCompleted       = errors.New("套餐尚未完成")
	ErrCompletionBonusClaimed    = errors.New("完成奖已领取")
	ErrStructuralCycle           = errors.New("安置或推荐关系存在环")
	ErrInvalidAmount             = errors.New("金额无效")
	ErrNotInDownline             = errors.New("来源会员不在该会员下线")
	ErrPartialOrchestration      = errors.New("奖金计算未完成，未应用任何变更")
	ErrConcurrentModification    = errors.New("会员数据正被其他操作修改")
	ErrParticipantProtected      = errors.New("管理角色不可删除")
	ErrActorRequired             = errors.New("缺少操作人")
	ErrPlacementSideInvalid      = errors.New("安置方向无效")
	ErrUnlockedLevelsInvalid     = errors.New("解锁层级必须在 0-20 之间")
	ErrCompensationConfigInvalid = errors.New("奖金配置无效")
	ErrWithdrawalNotFound        = errors.New("提现申请不存在")
	ErrWithdrawalAmountInvalid   = errors.New("提现金额无效")
	ErrWithdrawalChannelInvalid  = errors.New("提现渠道无效")
	ErrWithdrawalInsufficient    = errors.New("可提现金额不足")
	ErrWithdrawalStatusInvalid   = errors.New("提现申请状态不允许该操作")
	ErrWithdrawalActionInvalid   = errors.New("提现审核动作无效")
	ErrReferralCodeExhausted     = errors.New("推荐码生成失败")
)

// OrchestrationError 奖金编排某一步失败，事务已整体回滚
type OrchestrationError struct {
	Step      string
	BuyerID   uint
	PackageID uint
	Amount    decimal.Decimal
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("compensation step %s failed (buyer=%d package=%d amount=%s): %v",
		e.Step, e.BuyerID, e.PackageID, e.Amount.StringFixed(2), e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrPartialOrchestration) 成立
func (e *OrchestrationError) Is(target error) bool {
	return target == ErrPartialOrchestration
}
