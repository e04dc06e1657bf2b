package public

import (
	"strings"

	handlershared "github.com/mlm-engine/internal/http/handlers/shared"
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WithdrawalApplyRequest 提现申请请求
type WithdrawalApplyRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Channel string `json:"channel" binding:"required"`
	Account string `json:"account" binding:"required"`
}

// GetBusinessInfo 查看本人两侧业绩与结转
func (h *Handler) GetBusinessInfo(c *gin.Context) {
	participantID, ok := resolveSelfParticipant(c)
	if !ok {
		return
	}
	info, err := h.CompensationService.GetBusinessInfo(c.Request.Context(), participantID)
	if err != nil {
		handlershared.RespondCompensationError(c, err, "get business info failed")
		return
	}
	response.Success(c, info)
}

// GetEarnings 查看本人收益记录（按时间倒序）
func (h *Handler) GetEarnings(c *gin.Context) {
	participantID, ok := resolveSelfParticipant(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.QueryPagination(c)
	items, total, err := h.CompensationService.GetEarnings(c.Request.Context(), participantID, page, pageSize)
	if err != nil {
		handlershared.RespondCompensationError(c, err, "get earnings failed")
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetTransactions 查看本人资金流水
func (h *Handler) GetTransactions(c *gin.Context) {
	participantID, ok := resolveSelfParticipant(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.QueryPagination(c)
	items, total, err := h.CompensationService.ListTransactions(c.Request.Context(), participantID, page, pageSize)
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "list transactions failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// RequestWithdrawal 发起提现
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	var req WithdrawalApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "invalid withdrawal amount", nil)
		return
	}
	withdrawal, err := h.CompensationService.RequestWithdrawal(c.Request.Context(), actorID, service.WithdrawalApplyInput{
		Amount:  amount,
		Channel: req.Channel,
		Account: req.Account,
	})
	if err != nil {
		handlershared.RespondCompensationError(c, err, "request withdrawal failed")
		return
	}
	response.Success(c, withdrawal)
}

// ClaimCompletionBonus 领取本人已完成套餐的完成奖
func (h *Handler) ClaimCompletionBonus(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	packageID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	earning, err := h.CompensationService.ClaimCompletionBonus(c.Request.Context(), actorID, packageID)
	if err != nil {
		handlershared.RespondCompensationError(c, err, "claim completion bonus failed")
		return
	}
	response.Success(c, earning)
}
