package admin

import (
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/queue"

	"github.com/gin-gonic/gin"
)

// RecalculateRequest 全量重算请求
type RecalculateRequest struct {
	Async bool `json:"async"`
}

// RecalculateAll 全量重算会员派生数据，async=true 且队列可用时转入后台执行
func (h *Handler) RecalculateAll(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	var req RecalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "bad request", err)
			return
		}
	}
	if req.Async {
		if h.QueueClient == nil || !h.QueueClient.Enabled() {
			respondError(c, response.CodeBadRequest, "queue unavailable", nil)
			return
		}
		if err := h.QueueClient.EnqueueRecalculateAll(queue.RecalculateAllPayload{RequestedBy: actorID}); err != nil {
			respondError(c, response.CodeInternal, "enqueue recalculation failed", err)
			return
		}
		response.Success(c, gin.H{"queued": true})
		return
	}
	result, err := h.CompensationService.RecalculateAll(c.Request.Context())
	if err != nil {
		respondCompensationError(c, err, "recalculate failed")
		return
	}
	requestLog(c).Infow("admin_recalculate_all",
		"actor_id", actorID,
		"updated_count", result.UpdatedCount,
		"changed_count", result.ChangedCount,
	)
	response.Success(c, result)
}
