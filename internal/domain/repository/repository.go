// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"ai-novel-orchestrator/internal/domain/entity"
)

// TaskStore 任务状态存储
//
// Save 与 Load 在单次调用内必须是原子的：读方要么看到旧记录，要么看到完整的新记录。
// Load 对未知或已过期的任务返回 errors.CodeNotFound。
type TaskStore interface {
	// Save 整体写入任务快照
	Save(ctx context.Context, task *entity.Task) error

	// Load 读取任务快照
	Load(ctx context.Context, id string) (*entity.Task, error)

	// ListActive 列出尚未进入终态的任务，用于重启恢复
	ListActive(ctx context.Context) ([]*entity.Task, error)
}

// StageLogRepository 阶段流水仓储
type StageLogRepository interface {
	// Create 写入一条流水，EventID 重复时忽略
	Create(ctx context.Context, log *entity.StageLog) error

	// Stats 按阶段聚合 since 之后的流水
	Stats(ctx context.Context, since time.Time) ([]*entity.StageStats, error)

	// ListByTask 获取任务的全部阶段流水
	ListByTask(ctx context.Context, taskID string) ([]*entity.StageLog, error)
}
