package generation

import (
	"sync/atomic"

	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/domain/entity"
)

// Run 一个任务的执行句柄
// Task 只由执行该 Run 的 goroutine 读写，其他 goroutine 通过 Cancel/Stop 协作
type Run struct {
	task   *entity.Task
	ledger *quota.Ledger

	cancelled atomic.Bool
	stopping  atomic.Bool
}

// NewRun 创建执行句柄，ledger 可为 nil
func NewRun(task *entity.Task, ledger *quota.Ledger) *Run {
	return &Run{task: task, ledger: ledger}
}

// Cancel 请求取消，在下一个步骤边界生效，任务以 CANCELLED 失败
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled 是否已请求取消
func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Stop 请求停止，在下一个步骤边界生效，任务保持非终态以便恢复
func (r *Run) Stop() {
	r.stopping.Store(true)
}

// TaskID 任务 ID
func (r *Run) TaskID() string {
	return r.task.ID
}
