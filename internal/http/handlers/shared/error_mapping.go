package shared

import (
	"errors"

	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// PartialOrchestrationMessage 奖金编排失败时对外统一提示
const PartialOrchestrationMessage = "could not complete calculation, no changes applied"

// MappedHandlerError 定义业务错误到接口错误响应的映射关系。
type MappedHandlerError struct {
	Target error
	Code   int
	Msg    string
}

// CompensationErrorRules 奖金引擎错误映射
var CompensationErrorRules = []MappedHandlerError{
	{Target: service.ErrPartialOrchestration, Code: response.CodeInternal, Msg: PartialOrchestrationMessage},
	{Target: service.ErrParticipantNotFound, Code: response.CodeNotFound, Msg: "participant not found"},
	{Target: service.ErrSponsorNotFound, Code: response.CodeNotFound, Msg: "sponsor not found"},
	{Target: service.ErrPackageNotFound, Code: response.CodeNotFound, Msg: "package not found"},
	{Target: service.ErrWithdrawalNotFound, Code: response.CodeNotFound, Msg: "withdrawal not found"},
	{Target: service.ErrStructuralCycle, Code: response.CodeConflict, Msg: "placement or referral structure contains a cycle"},
	{Target: service.ErrConcurrentModification, Code: response.CodeConflict, Msg: "participant is being modified, retry later"},
	{Target: service.ErrParticipantProtected, Code: response.CodeForbidden, Msg: "admin participants cannot be removed"},
	{Target: service.ErrActorRequired, Code: response.CodeBadRequest, Msg: "actor is required"},
	{Target: service.ErrInvalidAmount, Code: response.CodeBadRequest, Msg: "invalid amount"},
	{Target: service.ErrPackageInvalid, Code: response.CodeBadRequest, Msg: "invalid package"},
	{Target: service.ErrPackageOwnerMismatch, Code: response.CodeBadRequest, Msg: "package does not belong to participant"},
	{Target: service.ErrPackageNotCompleted, Code: response.CodeBadRequest, Msg: "package not completed"},
	{Target: service.ErrCompletionBonusClaimed, Code: response.CodeBadRequest, Msg: "completion bonus already claimed"},
	{Target: service.ErrNotInDownline, Code: response.CodeBadRequest, Msg: "source is not in downline"},
	{Target: service.ErrPlacementSideInvalid, Code: response.CodeBadRequest, Msg: "invalid placement side"},
	{Target: service.ErrUnlockedLevelsInvalid, Code: response.CodeBadRequest, Msg: "unlocked levels must be between 0 and 20"},
	{Target: service.ErrWithdrawalAmountInvalid, Code: response.CodeBadRequest, Msg: "invalid withdrawal amount"},
	{Target: service.ErrWithdrawalChannelInvalid, Code: response.CodeBadRequest, Msg: "invalid withdrawal channel"},
	{Target: service.ErrWithdrawalInsufficient, Code: response.CodeBadRequest, Msg: "insufficient withdrawable amount"},
	{Target: service.ErrWithdrawalStatusInvalid, Code: response.CodeBadRequest, Msg: "withdrawal status does not allow this action"},
	{Target: service.ErrWithdrawalActionInvalid, Code: response.CodeBadRequest, Msg: "invalid review action"},
}

// RespondWithMappedError 按映射表输出业务错误，未命中时使用兜底提示并记录原始错误
func RespondWithMappedError(c *gin.Context, err error, rules []MappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			// 编排失败需要保留原始步骤信息
			if errors.Is(err, service.ErrPartialOrchestration) {
				RespondError(c, rule.Code, rule.Msg, err)
				return
			}
			RespondError(c, rule.Code, rule.Msg, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackMsg, err)
}

// RespondCompensationError 输出奖金引擎错误
func RespondCompensationError(c *gin.Context, err error, fallbackMsg string) {
	RespondWithMappedError(c, err, CompensationErrorRules, response.CodeInternal, fallbackMsg)
}
