package provider

import (
	"time"

	"github.com/mlm-engine/internal/authz"
	"github.com/mlm-engine/internal/cache"
	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/metrics"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/queue"
	"github.com/mlm-engine/internal/repository"
	"github.com/mlm-engine/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.CompensationMetrics

	// Repositories
	LedgerRepo repository.LedgerRepository

	// Services
	AuthzService        *authz.Service
	CompensationService *service.CompensationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Metrics:     metrics.NewCompensationMetrics(),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	c.LedgerRepo = repository.NewLedgerRepository(models.DB)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	setting := service.CompensationSettingFromConfig(c.Config.Compensation)
	compensationService, err := service.NewCompensationService(c.LedgerRepo, setting, service.LockSettingFromConfig(c.Config.Lock))
	if err != nil {
		logger.Errorw("provider_init_compensation_failed", "error", err)
		panic(err)
	}
	compensationService.SetObserver(c.Metrics)
	if cache.Enabled() {
		ttl := time.Duration(c.Config.Lock.TTLSeconds) * time.Second
		compensationService.SetLocker(cache.NewParticipantLocker(cache.Client(), ttl))
		compensationService.SetTreeLocker(cache.NewTreeLocker(cache.Client(), ttl))
		logger.Infow("provider_participant_locker", "backend", "redis")
	} else {
		logger.Infow("provider_participant_locker", "backend", "local")
	}
	if c.QueueClient != nil {
		compensationService.SetEnqueuer(c.QueueClient)
	}
	c.CompensationService = compensationService
}
