package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/application/orchestrator"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/domain/repository"
	"ai-novel-orchestrator/internal/interfaces/http/dto"
)

const defaultStatsWindow = 24 * time.Hour

// StatsSource 进程内任务统计
type StatsSource interface {
	Stats(ctx context.Context) orchestrator.Stats
}

// StatsHandler 统计处理器
type StatsHandler struct {
	source StatsSource
	logs   repository.StageLogRepository
	now    func() time.Time
}

// NewStatsHandler 创建统计处理器，logs 为 nil 表示未启用归档
func NewStatsHandler(source StatsSource, logs repository.StageLogRepository) *StatsHandler {
	return &StatsHandler{source: source, logs: logs, now: time.Now}
}

// Stats 任务统计
// @Summary 任务统计
// @Tags Stats
// @Produce json
// @Success 200 {object} dto.Response[dto.StatsResponse]
// @Router /v1/stats [get]
func (h *StatsHandler) Stats(c *gin.Context) {
	dto.Success(c, &dto.StatsResponse{Stats: h.source.Stats(c.Request.Context())})
}

// StageStats 阶段归档统计
// @Summary 阶段归档统计
// @Tags Stats
// @Produce json
// @Param since query string false "统计窗口，如 24h"
// @Success 200 {object} dto.Response[dto.StageStatsResponse]
// @Failure 503 {object} dto.ErrorResponse "未启用归档"
// @Router /v1/stats/stages [get]
func (h *StatsHandler) StageStats(c *gin.Context) {
	if h.logs == nil {
		dto.ServiceUnavailable(c, "stage log archive not configured")
		return
	}

	since := dto.BindSince(c, h.now(), defaultStatsWindow)
	stages, err := h.logs.Stats(c.Request.Context(), since)
	if err != nil {
		writeError(c, err, "query stage stats")
		return
	}
	if stages == nil {
		stages = []*entity.StageStats{}
	}
	dto.Success(c, &dto.StageStatsResponse{
		Since:  since.UTC().Format(time.RFC3339),
		Stages: stages,
	})
}
