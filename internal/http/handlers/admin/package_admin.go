package admin

import (
	"github.com/mlm-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// PurchasePackageRequest 代会员购买套餐请求
type PurchasePackageRequest struct {
	BuyerID uint `json:"buyer_id" binding:"required"`
	PackageRequest
}

// RecordPaymentRequest 记录月供请求
type RecordPaymentRequest struct {
	Months int `json:"months"`
}

// PurchasePackage 创建套餐并触发奖金计算
func (h *Handler) PurchasePackage(c *gin.Context) {
	var req PurchasePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid amount", nil)
		return
	}
	pkg, err := h.CompensationService.PurchasePackage(c.Request.Context(), req.BuyerID, input)
	if err != nil {
		respondCompensationError(c, err, "purchase package failed")
		return
	}
	response.Success(c, pkg)
}

// RecordPackagePayment 记录套餐月供
func (h *Handler) RecordPackagePayment(c *gin.Context) {
	packageID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	req := RecordPaymentRequest{Months: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "bad request", err)
			return
		}
	}
	pkg, err := h.CompensationService.RecordPackagePayment(c.Request.Context(), packageID, req.Months)
	if err != nil {
		respondCompensationError(c, err, "record package payment failed")
		return
	}
	response.Success(c, pkg)
}

// CompensatePackage 补跑套餐奖金计算（已计奖时无副作用）
func (h *Handler) CompensatePackage(c *gin.Context) {
	packageID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	pkg, err := h.CompensationService.CompensatePackage(c.Request.Context(), packageID)
	if err != nil {
		respondCompensationError(c, err, "compensate package failed")
		return
	}
	response.Success(c, pkg)
}
