package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditledger/internal/config"
	"creditledger/internal/engine"
	"creditledger/internal/handler"
	"creditledger/internal/infrastructure/cache"
	"creditledger/internal/infrastructure/database"
	"creditledger/internal/infrastructure/mq"
	"creditledger/internal/storage/gormstore"
	"creditledger/internal/storage/redisidem"
	"creditledger/pkg/idgen"
	"creditledger/pkg/logger"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 组装引擎配置
	engineCfg, err := cfg.Credits.EngineConfig()
	if err != nil {
		log.Fatalf("积分配置错误: %v", err)
	}

	store := gormstore.New(db)

	opts := []engine.Option{
		engine.WithLogger(logger.NewSlog(nil)),
		// 幂等记录放 Redis，自带 TTL，减轻主库压力
		engine.WithIdempotencyStore(redisidem.New(redisClient)),
	}

	// Kafka 可选：开启时审计事件同步投递到消息队列
	if cfg.Kafka.Enabled {
		producer := mq.InitKafka(&cfg.Kafka)
		defer mq.CloseKafka()
		opts = append(opts, engine.WithAuditPublisher(
			mq.NewAuditPublisher(producer, cfg.Kafka.Topic.AuditLog),
		))
	}

	eng, err := engine.New(store, engineCfg, opts...)
	if err != nil {
		log.Fatalf("创建积分引擎失败: %v", err)
	}

	// 设置路由
	router := handler.SetupRouter(eng, store, redisClient)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
