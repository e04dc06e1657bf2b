package queue

import (
	"encoding/json"

	"github.com/mlm-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPackagePurchased 套餐奖金计算任务
	TaskPackagePurchased = constants.TaskPackagePurchased
	// TaskRecalculateAll 全量重算任务
	TaskRecalculateAll = constants.TaskRecalculateAll
)

// PackagePurchasedPayload 套餐奖金计算任务载荷
type PackagePurchasedPayload struct {
	BuyerID   uint `json:"buyer_id"`
	PackageID uint `json:"package_id"`
}

// RecalculateAllPayload 全量重算任务载荷
type RecalculateAllPayload struct {
	RequestedBy uint `json:"requested_by"`
}

// NewPackagePurchasedTask 创建套餐奖金计算任务
func NewPackagePurchasedTask(payload PackagePurchasedPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPackagePurchased, body), nil
}

// NewRecalculateAllTask 创建全量重算任务
func NewRecalculateAllTask(payload RecalculateAllPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecalculateAll, body), nil
}
