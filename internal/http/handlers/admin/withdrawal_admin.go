package admin

import (
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// ReviewWithdrawalRequest 提现审核请求
type ReviewWithdrawalRequest struct {
	Action string `json:"action" binding:"required"` // pay/reject
	Reason string `json:"reason"`
}

// ReviewWithdrawal 审核提现申请
func (h *Handler) ReviewWithdrawal(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	withdrawalID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	var req ReviewWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	withdrawal, err := h.CompensationService.ReviewWithdrawal(c.Request.Context(), withdrawalID, actorID, service.WithdrawalReviewInput{
		Action: req.Action,
		Reason: req.Reason,
	})
	if err != nil {
		respondCompensationError(c, err, "review withdrawal failed")
		return
	}
	response.Success(c, withdrawal)
}
