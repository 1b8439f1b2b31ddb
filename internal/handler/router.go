package handler

import (
	"creditledger/internal/engine"
	"creditledger/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupRouter 配置路由
func SetupRouter(eng *engine.Engine, store storage.Store, rdb *redis.Client) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(eng, store, rdb)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 用户相关
		api.POST("/users", h.CreateUser)

		// 积分相关
		credits := api.Group("/credits")
		{
			credits.GET("/balance", h.GetBalance)
			credits.GET("/history", h.GetHistory)
			credits.GET("/access", h.ValidateAccess)
			credits.POST("/charge", h.Charge)
			credits.POST("/refund", h.Refund)
			credits.POST("/grant", h.Grant)

			tier := credits.Group("/tier")
			{
				tier.POST("/upgrade", h.UpgradeTier)
				tier.POST("/downgrade", h.DowngradeTier)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
