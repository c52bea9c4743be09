package orchestrator

import (
	"context"

	"ai-novel-orchestrator/internal/domain/entity"
)

// Stats 本进程处理过的任务统计
type Stats struct {
	Total       int                       `json:"total"`
	ByStatus    map[entity.TaskStatus]int `json:"by_status"`
	SuccessRate float64                   `json:"success_rate"`
	Running     int                       `json:"running"`
	Queued      int                       `json:"queued"`
	Capacity    int                       `json:"capacity"`
}

// Stats 统计各状态任务数与成功率，成功率 = completed / (completed + failed)
func (o *Orchestrator) Stats(_ context.Context) Stats {
	o.mu.RLock()
	by := make(map[entity.TaskStatus]int, len(o.counts))
	for s, n := range o.counts {
		if n > 0 {
			by[s] = n
		}
	}
	total := o.total
	o.mu.RUnlock()

	out := Stats{
		Total:    total,
		ByStatus: by,
		Capacity: o.admission.Capacity(),
	}
	out.Running, out.Queued = o.admission.Stats()
	if finished := by[entity.TaskStatusCompleted] + by[entity.TaskStatusFailed]; finished > 0 {
		out.SuccessRate = float64(by[entity.TaskStatusCompleted]) / float64(finished)
	}
	return out
}
