package router

import (
	"context"
	"fmt"
	"time"

	"github.com/mlm-engine/internal/cache"
	"github.com/mlm-engine/internal/config"
	adminhandlers "github.com/mlm-engine/internal/http/handlers/admin"
	publichandlers "github.com/mlm-engine/internal/http/handlers/public"
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按会员侧/管理端分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := cache.Prefix()
	redisClient := cache.Client()
	withdrawalRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:withdrawal", redisPrefix),
		WindowSeconds: cfg.RateLimit.Withdrawal.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Withdrawal.MaxRequests,
	}
	adminRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin", redisPrefix),
		WindowSeconds: cfg.RateLimit.Admin.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Admin.MaxRequests,
		FailOpen:      true,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", healthzHandler())
	if c.Metrics != nil {
		r.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	}

	actorAuth := ActorAuthMiddleware(cfg.JWT.SecretKey, c.LedgerRepo)

	apiV1 := r.Group("/api/v1")
	{
		// 会员侧接口
		member := apiV1.Group("")
		member.Use(actorAuth)
		{
			member.GET("/participants/:id/business-info", publicHandler.GetBusinessInfo)
			member.GET("/participants/:id/earnings", publicHandler.GetEarnings)
			member.GET("/participants/:id/transactions", publicHandler.GetTransactions)
			member.POST("/withdrawals", RateLimitMiddleware(redisClient, withdrawalRule, KeyByActor), publicHandler.RequestWithdrawal)
			member.POST("/packages/:id/completion-bonus", publicHandler.ClaimCompletionBonus)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		admin.Use(actorAuth, AdminRBACMiddleware(c.AuthzService), RateLimitMiddleware(redisClient, adminRule, KeyByActor))
		{
			admin.GET("/participants", adminHandler.ListParticipants)
			admin.POST("/participants", adminHandler.EnrollParticipant)
			admin.POST("/participants/root", adminHandler.CreateRootParticipant)
			admin.GET("/participants/:id", adminHandler.GetParticipant)
			admin.DELETE("/participants/:id", adminHandler.RemoveParticipant)
			admin.PUT("/participants/:id/levels", adminHandler.SetUnlockedLevels)
			admin.GET("/participants/:id/business-info", adminHandler.GetParticipantBusinessInfo)
			admin.GET("/participants/:id/transactions", adminHandler.ListParticipantTransactions)

			admin.POST("/packages", adminHandler.PurchasePackage)
			admin.POST("/packages/:id/payments", adminHandler.RecordPackagePayment)
			admin.POST("/packages/:id/compensate", adminHandler.CompensatePackage)

			admin.POST("/recalculate", adminHandler.RecalculateAll)
			admin.POST("/withdrawals/:id/review", adminHandler.ReviewWithdrawal)

			admin.GET("/authz/roles", adminHandler.ListAuthzRoles)
			admin.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
			admin.PUT("/authz/actors/:id/roles", adminHandler.SetAuthzActorRoles)
		}
	}

	return r
}

func healthzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "ok"}
		healthy := true
		if models.DB == nil {
			status["database"] = "uninitialized"
			healthy = false
		} else if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["database"] = "unreachable"
			healthy = false
		}
		if cache.Enabled() {
			status["redis"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				status["redis"] = "unreachable"
				healthy = false
			}
		}
		if !healthy {
			response.Unavailable(c, "unhealthy", status)
			return
		}
		response.Success(c, status)
	}
}
