package worker

import (
	"context"
	"errors"
	"time"

	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name   string
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.ErrorHandler = asynq.ErrorHandlerFunc(logTaskError)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	mux.Use(taskLogging)
	consumer.Register(mux)
	return &Service{
		name:   "worker",
		server: server,
		mux:    mux,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动消费并阻塞到 ctx 结束，信号由上层 Runner 统一处理
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Stop 等待进行中的任务完成后停止
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	return nil
}

// taskLogging 记录每个任务的耗时与结果
func taskLogging(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, task)
		fields := []interface{}{
			"task_type", task.Type(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if taskID, ok := asynq.GetTaskID(ctx); ok {
			fields = append(fields, "task_id", taskID)
		}
		if err != nil {
			logger.Warnw("worker_task_failed", append(fields, "error", err)...)
			return err
		}
		logger.Debugw("worker_task_done", fields...)
		return nil
	})
}

// logTaskError 重试耗尽时记录错误
func logTaskError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}
	logger.Errorw("worker_task_exhausted",
		"task_type", task.Type(),
		"retried", retried,
		"error", err,
	)
}
