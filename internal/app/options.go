package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/logger"

	"go.uber.org/zap"
)

// Mode 启动模式：单进程运行全部，或拆分为 API 进程与奖金计算 Worker 进程
type Mode string

const (
	ModeAll    Mode = "all"    // HTTP 服务，队列启用时同进程消费任务
	ModeAPI    Mode = "api"    // 仅 HTTP 服务，异步购买投递到队列
	ModeWorker Mode = "worker" // 仅消费奖金计算与全量重算任务
)

// Worker 关闭需等待进行中的奖金事务提交
const defaultShutdownTimeout = 10 * time.Second

// ParseMode 解析启动模式，空值视为 all
func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeAll, nil
	case ModeAll, ModeAPI, ModeWorker:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode: %s", raw)
	}
}

// ServesHTTP 是否启动 HTTP 服务
func (m Mode) ServesHTTP() bool {
	return m == ModeAll || m == ModeAPI
}

// RunsWorker 是否启动 Worker，all 模式仅在队列启用时运行
func (m Mode) RunsWorker(queueEnabled bool) bool {
	return m == ModeWorker || (m == ModeAll && queueEnabled)
}

// Options 引擎进程启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            Mode
	OperatorID      uint // 运营账号，启动时授予超级管理员角色
}

func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}
