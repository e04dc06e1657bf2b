package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/mlm-engine/internal/http/handlers/shared"
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/repository"
	"github.com/mlm-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateRootRequest 创建根会员请求
type CreateRootRequest struct {
	Name string `json:"name" binding:"required"`
}

// PackageRequest 套餐参数（金额以字符串传递）
type PackageRequest struct {
	Tier          string `json:"tier"`
	MonthlyAmount string `json:"monthly_amount" binding:"required"`
	TotalMonths   int    `json:"total_months" binding:"required"`
	MonthsPaid    int    `json:"months_paid"`
}

// EnrollParticipantRequest 注册会员请求
type EnrollParticipantRequest struct {
	Name        string          `json:"name" binding:"required"`
	SponsorCode string          `json:"sponsor_code" binding:"required"`
	Side        string          `json:"side" binding:"required"`
	Package     *PackageRequest `json:"package"`
}

// UnlockedLevelsRequest 调整解锁层级请求
type UnlockedLevelsRequest struct {
	Levels int  `json:"levels"`
	Reset  bool `json:"reset"`
}

func (req PackageRequest) toInput() (service.PackageInput, error) {
	monthly, err := decimal.NewFromString(strings.TrimSpace(req.MonthlyAmount))
	if err != nil {
		return service.PackageInput{}, err
	}
	return service.PackageInput{
		Tier:          strings.TrimSpace(req.Tier),
		MonthlyAmount: monthly,
		TotalMonths:   req.TotalMonths,
		MonthsPaid:    req.MonthsPaid,
	}, nil
}

// CreateRootParticipant 创建根会员
func (h *Handler) CreateRootParticipant(c *gin.Context) {
	var req CreateRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	root, err := h.CompensationService.CreateRoot(c.Request.Context(), req.Name)
	if err != nil {
		respondCompensationError(c, err, "create root failed")
		return
	}
	response.Success(c, root)
}

// EnrollParticipant 注册会员并安置到推荐人指定一侧
func (h *Handler) EnrollParticipant(c *gin.Context) {
	var req EnrollParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input := service.EnrollInput{
		Name:        req.Name,
		SponsorCode: strings.TrimSpace(req.SponsorCode),
		Side:        req.Side,
	}
	if req.Package != nil {
		pkgInput, err := req.Package.toInput()
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid amount", nil)
			return
		}
		input.Package = &pkgInput
	}
	result, err := h.CompensationService.EnrollParticipant(c.Request.Context(), input)
	if err != nil {
		respondCompensationError(c, err, "enroll participant failed")
		return
	}
	response.Success(c, result)
}

// ListParticipants 会员列表
func (h *Handler) ListParticipants(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	filter := repository.ParticipantListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Role:     strings.TrimSpace(c.Query("role")),
	}
	if raw := strings.TrimSpace(c.Query("referred_by")); raw != "" {
		referrerID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || referrerID == 0 {
			respondError(c, response.CodeBadRequest, "invalid referred_by", err)
			return
		}
		filter.ReferredBy = uint(referrerID)
	}
	items, total, err := h.CompensationService.ListParticipants(c.Request.Context(), filter)
	if err != nil {
		respondError(c, response.CodeInternal, "list participants failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetParticipant 会员详情
func (h *Handler) GetParticipant(c *gin.Context) {
	participantID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	participant, err := h.CompensationService.GetParticipant(c.Request.Context(), participantID)
	if err != nil {
		respondCompensationError(c, err, "get participant failed")
		return
	}
	response.Success(c, participant)
}

// GetParticipantBusinessInfo 会员两侧业绩
func (h *Handler) GetParticipantBusinessInfo(c *gin.Context) {
	participantID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	info, err := h.CompensationService.GetBusinessInfo(c.Request.Context(), participantID)
	if err != nil {
		respondCompensationError(c, err, "get business info failed")
		return
	}
	response.Success(c, info)
}

// ListParticipantTransactions 会员资金流水
func (h *Handler) ListParticipantTransactions(c *gin.Context) {
	participantID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.QueryPagination(c)
	items, total, err := h.CompensationService.ListTransactions(c.Request.Context(), participantID, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "list transactions failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// RemoveParticipant 删除会员并重新安置其下线
func (h *Handler) RemoveParticipant(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	participantID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	result, err := h.CompensationService.RemoveParticipant(c.Request.Context(), participantID, actorID)
	if err != nil {
		respondCompensationError(c, err, "remove participant failed")
		return
	}
	requestLog(c).Infow("admin_participant_removed",
		"actor_id", actorID,
		"participant_id", participantID,
		"reassigned", result.Reassigned,
		"orphaned", result.Orphaned,
	)
	response.Success(c, result)
}

// SetUnlockedLevels 管理员锁定或重置解锁层级
func (h *Handler) SetUnlockedLevels(c *gin.Context) {
	participantID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	var req UnlockedLevelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	participant, err := h.CompensationService.SetUnlockedLevels(c.Request.Context(), participantID, service.UnlockedLevelsInput{
		Levels: req.Levels,
		Reset:  req.Reset,
	})
	if err != nil {
		respondCompensationError(c, err, "set unlocked levels failed")
		return
	}
	response.Success(c, participant)
}
