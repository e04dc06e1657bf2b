package public

import "github.com/mlm-engine/internal/provider"

// Handler 会员侧接口处理器入口
// 说明：该处理器仅用于会员查看自身奖金数据与发起提现。
type Handler struct {
	*provider.Container
}

// New 创建会员侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
