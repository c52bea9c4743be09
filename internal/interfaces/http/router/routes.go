// Package router 提供 HTTP 路由配置
package router

import (
	"ai-novel-orchestrator/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	novelHandler *handler.NovelHandler,
	catalogHandler *handler.CatalogHandler,
	statsHandler *handler.StatsHandler,
) {
	// 生成任务
	novels := v1.Group("/novels")
	{
		novels.POST("", novelHandler.Submit)
		novels.GET("/:id", novelHandler.GetStatus)
		novels.GET("/:id/result", novelHandler.GetResult)
		novels.POST("/:id/cancel", novelHandler.Cancel)
		novels.GET("/:id/export", novelHandler.Export)
	}

	v1.GET("/catalog", catalogHandler.List)

	// 统计
	stats := v1.Group("/stats")
	{
		stats.GET("", statsHandler.Stats)
		stats.GET("/stages", statsHandler.StageStats)
	}
}
