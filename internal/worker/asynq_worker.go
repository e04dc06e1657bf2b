package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/provider"
	"github.com/mlm-engine/internal/queue"
	"github.com/mlm-engine/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPackagePurchased, c.handlePackagePurchased)
	mux.HandleFunc(queue.TaskRecalculateAll, c.handleRecalculateAll)
}

func (c *Consumer) handlePackagePurchased(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_package_purchased_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PackagePurchasedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_package_purchased_unmarshal_failed", "error", err)
		return err
	}
	if payload.BuyerID == 0 || payload.PackageID == 0 {
		logger.Debugw("worker_package_purchased_skip_invalid_payload",
			"buyer_id", payload.BuyerID,
			"package_id", payload.PackageID,
		)
		return nil
	}
	if c.CompensationService == nil {
		logger.Warnw("worker_package_purchased_skip_service_nil", "package_id", payload.PackageID)
		return nil
	}
	err := c.CompensationService.OnPackagePurchased(ctx, payload.BuyerID, payload.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPackageNotFound):
			logger.Debugw("worker_package_purchased_skip_package_not_found", "package_id", payload.PackageID)
			return nil
		case errors.Is(err, service.ErrPackageOwnerMismatch):
			logger.Warnw("worker_package_purchased_skip_owner_mismatch",
				"buyer_id", payload.BuyerID,
				"package_id", payload.PackageID,
			)
			return nil
		case errors.Is(err, service.ErrParticipantNotFound):
			logger.Debugw("worker_package_purchased_skip_buyer_not_found", "buyer_id", payload.BuyerID)
			return nil
		case errors.Is(err, service.ErrStructuralCycle):
			// 结构错误不重试，需人工修复关系
			logger.Errorw("worker_package_purchased_structural_cycle",
				"buyer_id", payload.BuyerID,
				"package_id", payload.PackageID,
				"error", err,
			)
			return nil
		default:
			logger.Warnw("worker_package_purchased_failed",
				"buyer_id", payload.BuyerID,
				"package_id", payload.PackageID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleRecalculateAll(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_recalculate_all_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RecalculateAllPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_recalculate_all_unmarshal_failed", "error", err)
			return err
		}
	}
	if c.CompensationService == nil {
		logger.Warnw("worker_recalculate_all_skip_service_nil", "requested_by", payload.RequestedBy)
		return nil
	}
	result, err := c.CompensationService.RecalculateAll(ctx)
	if err != nil {
		logger.Warnw("worker_recalculate_all_failed", "requested_by", payload.RequestedBy, "error", err)
		return err
	}
	logger.Infow("worker_recalculate_all_done",
		"requested_by", payload.RequestedBy,
		"updated_count", result.UpdatedCount,
		"changed_count", result.ChangedCount,
	)
	return nil
}
