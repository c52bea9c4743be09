package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"ai-novel-orchestrator/internal/domain/entity"
)

// StageLogRepository 阶段流水仓储实现
type StageLogRepository struct {
	client *Client
}

// NewStageLogRepository 创建阶段流水仓储
func NewStageLogRepository(client *Client) *StageLogRepository {
	return &StageLogRepository{client: client}
}

// Create 写入流水，同一事件重复投递时忽略
func (r *StageLogRepository) Create(ctx context.Context, log *entity.StageLog) error {
	ctx, span := tracer.Start(ctx, "postgres.StageLogRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(log).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create stage log: %w", err)
	}
	return nil
}

// Stats 按阶段聚合
func (r *StageLogRepository) Stats(ctx context.Context, since time.Time) ([]*entity.StageStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.StageLogRepository.Stats")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var out []*entity.StageStats
	if err := db.Model(&entity.StageLog{}).
		Select(`stage,
			COUNT(*) AS runs,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),0) AS failures,
			COALESCE(SUM(tokens),0) AS total_tokens,
			COALESCE(AVG(duration_ms),0) AS avg_duration_ms`, entity.StageLogFailed).
		Where("created_at >= ?", since).
		Group("stage").
		Order("stage").
		Scan(&out).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate stage logs: %w", err)
	}
	return out, nil
}

// ListByTask 获取任务的阶段流水
func (r *StageLogRepository) ListByTask(ctx context.Context, taskID string) ([]*entity.StageLog, error) {
	ctx, span := tracer.Start(ctx, "postgres.StageLogRepository.ListByTask")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var logs []*entity.StageLog
	if err := db.Where("task_id = ?", taskID).Order("created_at ASC").Find(&logs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stage logs: %w", err)
	}
	return logs, nil
}
