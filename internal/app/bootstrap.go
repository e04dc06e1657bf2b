package app

import (
	"errors"
	"fmt"
	"net"

	"github.com/mlm-engine/internal/cache"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/provider"
	"github.com/mlm-engine/internal/router"
	"github.com/mlm-engine/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(opts Options) (*Runner, error) {
	opts = normalizeOptions(opts)
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	container := provider.NewContainer(cfg)
	if opts.OperatorID != 0 {
		if err := container.AuthzService.GrantOperator(opts.OperatorID); err != nil {
			return nil, fmt.Errorf("grant operator role failed: %w", err)
		}
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode.ServesHTTP() {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 服务，all 模式下队列未启用时跳过
	if mode.RunsWorker(cfg.Queue.Enabled) {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	} else if mode == ModeAll {
		opts.Logger.Infow("app_worker_skipped", "reason", "queue_disabled")
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	if container.QueueClient != nil {
		runner.OnShutdown(container.QueueClient.Close)
	}
	runner.OnShutdown(cache.Close)
	runner.OnShutdown(logger.Sync)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"addr", net.JoinHostPort(opts.Config.Server.Host, opts.Config.Server.Port),
		"mode", opts.Mode,
	)
	return RunWithOptions(runner, opts)
}
