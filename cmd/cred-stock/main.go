package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cred-stock/internal/adapter/notification"
	"cred-stock/internal/api/router"
	"cred-stock/internal/pkg/config"
	"cred-stock/internal/pkg/database"
	"cred-stock/internal/pkg/logger"
	"cred-stock/internal/repository"
	"cred-stock/internal/scheduler"
	"cred-stock/internal/service"

	coreCredential "cred-stock/internal/core/credential"

	_ "cred-stock/docs" // Swagger docs
)

// @title Cred-Stock API
// @version 1.0
// @description 数字服务凭据池 API 文档
// @description 提供凭据库存管理、订单行分配、生命周期流转、到期扫描等功能

// @contact.name API Support
// @contact.email support@example.com

// @host localhost:8080
// @BasePath /api/v1

var (
	configFile = flag.String("config", "", "配置文件路径 (例如: -config=configs/config.yaml)")
	version    = flag.Bool("version", false, "显示版本信息")
)

const (
	appVersion = "1.0.0"
	appName    = "cred-stock-service"
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	// init config logger
	var cfg *config.Config
	{
		// 优先级: 命令行参数 > 环境变量 > 默认路径
		configPath := getConfigPath()

		// 加载配置
		c, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("加载配置失败: %v\n", err)
			fmt.Println("\n使用方式:")
			fmt.Println("  1. 命令行参数指定:")
			fmt.Println("     ./cred-stock -config=configs/config.yaml")
			fmt.Println("  2. 环境变量指定:")
			fmt.Println("     export CONFIG_FILE=configs/config.yaml")
			fmt.Println("     ./cred-stock")
			fmt.Println("  3. 使用默认配置:")
			fmt.Println("     ./cred-stock  (将使用 configs/config.yaml)")
			os.Exit(1)
		}
		cfg = c

		// 密钥由部署方提供, 缺失直接拒绝启动
		if len(cfg.Crypto.AESKey) != 32 {
			fmt.Println("crypto.aes_key 未配置或长度不是32字节, 拒绝启动")
			os.Exit(1)
		}

		// 初始化日志
		if err := logger.Init(&cfg.Log); err != nil {
			fmt.Printf("初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Load config file: %s of %s", configPath, getConfigSource()))

		defer func() {
			_ = logger.Close()
		}()
	}

	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion))

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer func() {
		_ = database.Close()
	}()

	if err := database.Migrate(); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port), zap.String("database", cfg.Database.Database))

	// 注入数据库连接到配置
	cfg.DB = database.GetDB()

	// 邮件通道: 未启用时仅记日志
	var mailer notification.Mailer
	if cfg.Mail.Enabled {
		mailer = notification.NewSendGridMailer(&cfg.Mail, logger.Log)
	} else {
		mailer = notification.NewLogMailer(logger.Log)
		logger.Warn("邮件投递未启用, 凭据邮件只记录日志")
	}

	// 管理员通知通道
	var notifier notification.Notifier
	switch {
	case cfg.Notify.Enabled && cfg.Notify.Provider == "lark":
		notifier = notification.NewMultiNotifier(logger.Log,
			notification.NewLogNotifier(logger.Log),
			notification.NewLarkNotifier(cfg.Notify.LarkWebhook, true, logger.Log))
	default:
		notifier = notification.NewLogNotifier(logger.Log)
	}

	credRepo := repository.NewCredentialRepository(database.GetDB())
	productRepo := repository.NewProductRepository(database.GetDB())

	deliveryService, err := service.NewDeliveryService(
		credRepo, productRepo, mailer, cfg.Crypto.AESKey, cfg.Mail.TemplateFile, logger.Log)
	if err != nil {
		logger.Fatal("初始化交付服务失败", zap.Error(err))
	}

	sm := coreCredential.NewStateMachine(database.GetDB(), logger.Log)
	sweepService := service.NewSweepService(credRepo, productRepo, sm, notifier, logger.Log)

	// 初始化并启动定时任务调度器
	taskScheduler := scheduler.NewScheduler(sweepService, logger.Log)
	if err := taskScheduler.Start(cfg); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(cfg, taskScheduler, deliveryService, notifier, logger.Log)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	// 关闭定时任务调度器
	taskScheduler.Stop()
	logger.Info("定时任务调度器已停止")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// getConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func getConfigPath() string {
	// 1. 命令行参数
	if *configFile != "" {
		return *configFile
	}

	// 2. 环境变量
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}

	// 3. 默认路径
	return "configs/config.yaml"
}

// getConfigSource 获取配置来源说明
func getConfigSource() string {
	if *configFile != "" {
		return "命令行参数"
	}
	if os.Getenv("CONFIG_FILE") != "" {
		return "环境变量"
	}
	return "默认配置"
}
