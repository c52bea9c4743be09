// Package archive 将任务事件流中的阶段事件落库为阶段流水
package archive

import (
	"context"
	"fmt"

	"ai-novel-orchestrator/internal/domain/repository"
	"ai-novel-orchestrator/internal/infrastructure/messaging"
	"ai-novel-orchestrator/pkg/logger"
)

// Archiver 事件归档处理器
type Archiver struct {
	logs repository.StageLogRepository
}

// NewArchiver 创建归档处理器
func NewArchiver(logs repository.StageLogRepository) *Archiver {
	return &Archiver{logs: logs}
}

// Register 将处理器挂到消费者上
func (a *Archiver) Register(c *messaging.Consumer) {
	c.RegisterHandler(messaging.TypeTaskStage, a.HandleStage)
	c.RegisterHandler(messaging.TypeTaskStatus, a.HandleStatus)
}

// HandleStage 写入一条阶段流水，重复投递由仓储按 EventID 去重
func (a *Archiver) HandleStage(ctx context.Context, msg *messaging.Message) error {
	ev, err := msg.Event()
	if err != nil {
		return err
	}
	log := ev.StageLog()
	if log == nil {
		return fmt.Errorf("message %s is not a stage event", msg.ID)
	}
	if log.EventID == "" {
		log.EventID = msg.ID
	}
	if err := a.logs.Create(ctx, log); err != nil {
		return err
	}
	logger.Debug(ctx, "stage log archived",
		"stage", log.Stage,
		"chapter", log.Chapter,
		"status", string(log.Status),
	)
	return nil
}

// HandleStatus 状态事件只记录日志
func (a *Archiver) HandleStatus(ctx context.Context, msg *messaging.Message) error {
	ev, err := msg.Event()
	if err != nil {
		return err
	}
	logger.Info(ctx, "task status changed",
		"status", string(ev.Status),
		"progress", ev.Progress,
	)
	return nil
}
