package dto

import (
	"ai-novel-orchestrator/internal/application/orchestrator"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/workflow/prompt"
)

// SubmitNovelResponse 创建任务响应
type SubmitNovelResponse struct {
	TaskID string `json:"task_id"`
}

// CancelNovelResponse 取消任务响应
type CancelNovelResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// NovelResultResponse 任务结果
type NovelResultResponse struct {
	TaskID      string            `json:"task_id"`
	Status      entity.TaskStatus `json:"status"`
	Request     entity.Request    `json:"request"`
	Outline     *entity.Outline   `json:"outline,omitempty"`
	Chapters    []entity.Chapter  `json:"chapters"`
	Metadata    entity.Metadata   `json:"metadata"`
	CreatedAt   string            `json:"created_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// ToNovelResultResponse 转换任务结果
func ToNovelResultResponse(t *entity.Task) *NovelResultResponse {
	if t == nil {
		return nil
	}
	resp := &NovelResultResponse{
		TaskID:    t.ID,
		Status:    t.Status,
		Request:   t.Request,
		Outline:   t.Outline,
		Chapters:  t.Chapters,
		Metadata:  t.Metadata,
		CreatedAt: formatTime(t.CreatedAt),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = formatTime(*t.CompletedAt)
	}
	return resp
}

// CatalogResponse 题材与文风目录
type CatalogResponse struct {
	Genres []prompt.Genre `json:"genres"`
	Styles []prompt.Style `json:"styles"`
}

// StatsResponse 任务统计
type StatsResponse struct {
	orchestrator.Stats
}

// StageStatsResponse 阶段归档统计
type StageStatsResponse struct {
	Since  string               `json:"since"`
	Stages []*entity.StageStats `json:"stages"`
}
