package entity

import "time"

// TaskEventType 任务事件类型
type TaskEventType string

const (
	// TaskEventStatus 状态迁移
	TaskEventStatus TaskEventType = "status"
	// TaskEventStage 单个步骤完成（成功或失败）
	TaskEventStage TaskEventType = "stage"
)

// Stage 流水线中的一个步骤
type Stage string

const (
	StageOutline Stage = "outline"
	StageChapter Stage = "chapter"
	StageEdit    Stage = "edit"
	StageReview  Stage = "review"
	StageRevise  Stage = "revise"
)

// TaskEvent 任务生命周期事件
type TaskEvent struct {
	ID         string        `json:"id"`
	Type       TaskEventType `json:"type"`
	TaskID     string        `json:"task_id"`
	Identity   string        `json:"identity"`
	Status     TaskStatus    `json:"status"`
	Progress   int           `json:"progress"`
	Stage      Stage         `json:"stage,omitempty"`
	Chapter    int           `json:"chapter,omitempty"`
	Success    bool          `json:"success"`
	Tokens     int64         `json:"tokens,omitempty"`
	ModelCalls int           `json:"model_calls,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	Error      string        `json:"error,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// StageLog 将步骤事件转换为归档记录，状态事件返回 nil
func (e TaskEvent) StageLog() *StageLog {
	if e.Type != TaskEventStage {
		return nil
	}
	status := StageLogSuccess
	if !e.Success {
		status = StageLogFailed
	}
	return &StageLog{
		EventID:    e.ID,
		TaskID:     e.TaskID,
		Identity:   e.Identity,
		Stage:      string(e.Stage),
		Chapter:    e.Chapter,
		Status:     status,
		Tokens:     e.Tokens,
		ModelCalls: e.ModelCalls,
		DurationMs: e.DurationMs,
		Error:      e.Error,
		CreatedAt:  e.OccurredAt,
	}
}
