package admin

import (
	"errors"

	"github.com/mlm-engine/internal/authz"
	handlershared "github.com/mlm-engine/internal/http/handlers/shared"
	"github.com/mlm-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// SetActorRolesRequest 设置调用方角色请求
type SetActorRolesRequest struct {
	Roles []string `json:"roles"`
}

// ListAuthzRoles 角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "list roles failed", err)
		return
	}
	response.Success(c, roles)
}

// GetAuthzRolePolicies 角色策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.GetRolePolicies(c.Param("role"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid role", err)
		return
	}
	response.Success(c, policies)
}

// SetAuthzActorRoles 覆盖设置会员的管理角色
func (h *Handler) SetAuthzActorRoles(c *gin.Context) {
	targetID, ok := parsePathUint(c, "id")
	if !ok {
		return
	}
	var req SetActorRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	if _, err := h.CompensationService.GetParticipant(c.Request.Context(), targetID); err != nil {
		respondCompensationError(c, err, "get participant failed")
		return
	}
	if err := h.AuthzService.SetActorRoles(targetID, req.Roles); err != nil {
		switch {
		case errors.Is(err, authz.ErrLastSuperAdmin):
			respondError(c, response.CodeConflict, "at least one super admin is required", err)
		case errors.Is(err, authz.ErrUnknownRole), errors.Is(err, authz.ErrRoleRequired), errors.Is(err, authz.ErrRoleReserved):
			respondError(c, response.CodeBadRequest, "unknown role", err)
		default:
			respondError(c, response.CodeInternal, "set roles failed", err)
		}
		return
	}
	roles, err := h.AuthzService.GetActorRoles(targetID)
	if err != nil {
		respondError(c, response.CodeInternal, "get roles failed", err)
		return
	}
	actorID, _ := handlershared.GetActorID(c)
	requestLog(c).Infow("admin_authz_roles_updated", "actor_id", actorID, "target_id", targetID, "roles", roles)
	response.Success(c, gin.H{"participant_id": targetID, "roles": roles})
}
