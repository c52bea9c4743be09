// Package admission 限制同时执行的生成任务数
package admission

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"ai-novel-orchestrator/internal/config"
	apperrors "ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/metrics"
)

// Mode 槽位占满时的处理方式
type Mode string

const (
	ModeReject  Mode = "reject"
	ModeEnqueue Mode = "enqueue"
)

// Controller 并发准入控制器
type Controller struct {
	sem     *semaphore.Weighted
	max     int
	backlog int
	mode    Mode

	mu      sync.Mutex
	active  int
	waiting int
	// resuming 恢复任务的等待数，不占用提交队列
	resuming int
}

// NewController 创建准入控制器
func NewController(cfg config.AdmissionConfig) *Controller {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	mode := Mode(cfg.Mode)
	if mode != ModeReject {
		mode = ModeEnqueue
	}
	return &Controller{
		sem:     semaphore.NewWeighted(int64(max)),
		max:     max,
		backlog: cfg.Backlog,
		mode:    mode,
	}
}

// Reserve 申请一个执行凭证
// 有空闲槽位时凭证立即可用；enqueue 模式下槽位占满则进入等待队列，队列满时返回 Overloaded
func (c *Controller) Reserve() (*Ticket, error) {
	if c.sem.TryAcquire(1) {
		c.mu.Lock()
		c.active++
		c.publish()
		c.mu.Unlock()
		return &Ticket{c: c, acquired: true}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeReject || c.waiting >= c.backlog {
		metrics.AdmissionRejected.Inc()
		return nil, apperrors.ErrOverloaded.WithDetail("all generation slots are busy")
	}
	c.waiting++
	c.publish()
	return &Ticket{c: c, queued: true}, nil
}

// Resume 为重启后恢复的任务申请凭证
// 不受 reject 模式与等待队列长度限制，槽位占满时排队等待
func (c *Controller) Resume() *Ticket {
	if c.sem.TryAcquire(1) {
		c.mu.Lock()
		c.active++
		c.publish()
		c.mu.Unlock()
		return &Ticket{c: c, acquired: true, resumed: true}
	}
	c.mu.Lock()
	c.resuming++
	c.publish()
	c.mu.Unlock()
	return &Ticket{c: c, queued: true, resumed: true}
}

// Stats 当前运行与等待中的任务数
func (c *Controller) Stats() (active, waiting int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.waiting + c.resuming
}

// Capacity 最大并发数
func (c *Controller) Capacity() int {
	return c.max
}

// publish 调用方需持有 mu
func (c *Controller) publish() {
	metrics.ActiveTasks.Set(float64(c.active))
	metrics.BacklogTasks.Set(float64(c.waiting + c.resuming))
}

// dequeue 调用方需持有 mu
func (c *Controller) dequeue(resumed bool) {
	if resumed {
		c.resuming--
	} else {
		c.waiting--
	}
}

// Ticket 执行凭证
type Ticket struct {
	c *Controller

	mu       sync.Mutex
	acquired bool
	queued   bool
	waiting  bool
	released bool
	resumed  bool
}

// Queued 凭证是否仍在等待槽位
func (t *Ticket) Queued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

// Wait 阻塞直到获得槽位，按到达顺序分配；ctx 结束时返回其错误
func (t *Ticket) Wait(ctx context.Context) error {
	t.mu.Lock()
	if t.acquired {
		t.mu.Unlock()
		return nil
	}
	if t.released {
		t.mu.Unlock()
		return apperrors.ErrCancelled.WithDetail("admission ticket already released")
	}
	t.waiting = true
	t.mu.Unlock()

	err := t.c.sem.Acquire(ctx, 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	t.queued = false
	t.waiting = false
	t.c.dequeue(t.resumed)
	if err != nil {
		t.released = true
		t.c.publish()
		return err
	}
	if t.released {
		// Release 在等待期间被调用
		t.c.sem.Release(1)
		t.c.publish()
		return apperrors.ErrCancelled.WithDetail("admission ticket released while waiting")
	}
	t.acquired = true
	t.c.active++
	t.c.publish()
	return nil
}

// Release 归还槽位，可重复调用
func (t *Ticket) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true

	if !t.acquired {
		// 正在 Wait 中时由 Wait 负责扣减等待数
		if t.queued && !t.waiting {
			t.queued = false
			t.c.mu.Lock()
			t.c.dequeue(t.resumed)
			t.c.publish()
			t.c.mu.Unlock()
		}
		return
	}
	t.c.mu.Lock()
	t.c.active--
	t.c.publish()
	t.c.mu.Unlock()
	t.c.sem.Release(1)
}
