package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cred-stock/internal/adapter/notification"
	"cred-stock/internal/api/handler"
	"cred-stock/internal/api/middleware"
	coreCredential "cred-stock/internal/core/credential"
	"cred-stock/internal/pkg/config"
	"cred-stock/internal/repository"
	"cred-stock/internal/scheduler"
	"cred-stock/internal/service"
)

// Setup 设置路由
func Setup(cfg *config.Config, taskScheduler *scheduler.Scheduler,
	delivery *service.DeliveryService, notifier notification.Notifier, logger *zap.Logger) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 获取数据库连接
	db := cfg.DB.(*gorm.DB)

	// 初始化Repository
	credRepo := repository.NewCredentialRepository(db)
	productRepo := repository.NewProductRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// 状态机: 所有状态写入的唯一通道
	sm := coreCredential.NewStateMachine(db, logger)

	// 初始化Service
	credentialService := service.NewCredentialService(credRepo, auditRepo, sm, cfg.Crypto.AESKey, logger)
	allocationService := service.NewAllocationService(credRepo, productRepo, sm, delivery, notifier, logger)
	productService := service.NewProductService(productRepo, credRepo, logger)

	// 初始化Handler
	credentialHandler := handler.NewCredentialHandler(credentialService, delivery)
	allocationHandler := handler.NewAllocationHandler(allocationService)
	productHandler := handler.NewProductHandler(productService)
	sweepHandler := handler.NewSweepHandler(taskScheduler)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 凭据管理
		credentialsGroup := v1.Group("/credentials")
		{
			credentialsGroup.POST("", credentialHandler.Create)            // 录入凭据
			credentialsGroup.GET("", credentialHandler.List)               // 列表查询
			credentialsGroup.GET("/:id", credentialHandler.Get)            // 获取详情
			credentialsGroup.PUT("/:id", credentialHandler.Update)         // 更新登录名/密码/备注
			credentialsGroup.DELETE("/:id", credentialHandler.Deactivate)  // 停用(软删除)
			credentialsGroup.GET("/:id/secret", credentialHandler.RevealSecret) // 查看明文密码(特权)
			credentialsGroup.GET("/:id/audits", credentialHandler.ListAuditLogs) // 流转历史
			credentialsGroup.POST("/:id/resend", credentialHandler.Resend) // 重发凭据邮件

			// 运营状态流转
			credentialsGroup.POST("/:id/pending-reset", credentialHandler.MarkPendingReset) // assigned -> pending_reset
			credentialsGroup.POST("/:id/reset", credentialHandler.Reset)                    // pending_reset -> available
			credentialsGroup.POST("/:id/expire", credentialHandler.ForceExpire)             // assigned -> expired
			credentialsGroup.POST("/:id/make-available", credentialHandler.MakeAvailable)   // assigned -> available(守卫)
		}

		// 凭据分配(订单工作流调用)
		allocationGroup := v1.Group("/allocation")
		{
			allocationGroup.POST("/check", allocationHandler.CheckAvailability) // 库存预检
			allocationGroup.POST("/claim", allocationHandler.Claim)             // 单行认领(幂等)
			allocationGroup.POST("/claim-batch", allocationHandler.ClaimBatch)  // 批量认领(逐行隔离)
		}

		// 产品管理
		productsGroup := v1.Group("/products")
		{
			productsGroup.POST("", productHandler.Create)        // 创建产品
			productsGroup.GET("", productHandler.List)           // 列表查询
			productsGroup.GET("/:id", productHandler.Get)        // 获取详情
			productsGroup.GET("/:id/stats", productHandler.Stats) // 凭据库存统计
		}

		// 到期扫描(手动触发)
		sweepGroup := v1.Group("/sweep")
		{
			sweepGroup.POST("/run", sweepHandler.Run)   // 触发到期扫描
			sweepGroup.POST("/warn", sweepHandler.Warn) // 触发到期提醒
		}
	}

	return r
}
