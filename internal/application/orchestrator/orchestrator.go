// Package orchestrator 对外提供生成任务的提交、查询、取消与恢复
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-novel-orchestrator/internal/application/admission"
	"ai-novel-orchestrator/internal/application/generation"
	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/domain/repository"
	"ai-novel-orchestrator/internal/workflow/prompt"
	apperrors "ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/logger"
	"ai-novel-orchestrator/pkg/metrics"
)

// EventPublisher 任务事件出口
type EventPublisher interface {
	Publish(ctx context.Context, ev entity.TaskEvent) error
}

// Orchestrator 任务编排器
type Orchestrator struct {
	cfg       *config.Config
	store     repository.TaskStore
	budget    quota.Budget
	admission *admission.Controller
	engine    *generation.Engine
	catalog   *prompt.Catalog
	events    EventPublisher
	now       func() time.Time

	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	runs      map[string]*runHandle
	snapshots map[string]*entity.Task
	// statusOf 只保留本进程持有或尚未结束的任务
	statusOf map[string]entity.TaskStatus
	counts   map[entity.TaskStatus]int
	total    int
}

// runHandle 一个正在执行或等待槽位的任务
type runHandle struct {
	task       *entity.Task
	run        *generation.Run
	ticket     *admission.Ticket
	ledger     *quota.Ledger
	waitCtx    context.Context
	cancelWait context.CancelFunc
	// waited 等待槽位阶段结束后关闭
	waited chan struct{}
}

// New 创建编排器，events 可为 nil
func New(
	cfg *config.Config,
	store repository.TaskStore,
	budget quota.Budget,
	ctrl *admission.Controller,
	engine *generation.Engine,
	catalog *prompt.Catalog,
	events EventPublisher,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		budget:    budget,
		admission: ctrl,
		engine:    engine,
		catalog:   catalog,
		events:    events,
		now:       time.Now,
		baseCtx:   ctx,
		stopAll:   cancel,
		runs:      make(map[string]*runHandle),
		snapshots: make(map[string]*entity.Task),
		statusOf:  make(map[string]entity.TaskStatus),
		counts:    make(map[entity.TaskStatus]int),
	}
	engine.WithObserver(o)
	return o
}

// Submit 校验请求、通过准入与配额后创建任务并在后台执行，立即返回任务 ID
func (o *Orchestrator) Submit(ctx context.Context, identity string, req entity.Request) (string, error) {
	req, err := normalize(req, o.cfg.Generation, o.catalog)
	if err != nil {
		metrics.TasksSubmitted.WithLabelValues("invalid").Inc()
		return "", err
	}

	o.mu.RLock()
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		metrics.TasksSubmitted.WithLabelValues("overloaded").Inc()
		return "", apperrors.ErrOverloaded.WithDetail("service is shutting down")
	}

	ticket, err := o.admission.Reserve()
	if err != nil {
		metrics.TasksSubmitted.WithLabelValues("overloaded").Inc()
		return "", err
	}

	estimate := quota.Estimate(req.WordCount, o.cfg.Generation.TokensPerWordFactor, o.cfg.Quota.MaxTokensPerRequest)
	if err := o.budget.Admit(ctx, identity, estimate); err != nil {
		ticket.Release()
		metrics.TasksSubmitted.WithLabelValues("quota").Inc()
		return "", err
	}

	task := entity.NewTask(uuid.NewString(), identity, req, o.now())
	if err := o.store.Save(ctx, task); err != nil {
		ticket.Release()
		if rerr := o.budget.Reconcile(ctx, identity, estimate, 0); rerr != nil {
			logger.Warn(ctx, "quota refund failed", "identity", identity, "error", rerr.Error())
		}
		metrics.TasksSubmitted.WithLabelValues("error").Inc()
		return "", apperrors.Wrap(err, apperrors.CodeStoreError, "persist task")
	}

	o.schedule(task, ticket, quota.NewLedger(o.budget, identity, estimate))
	metrics.TasksSubmitted.WithLabelValues("accepted").Inc()
	logger.Info(logger.WithTask(ctx, task.ID, identity), "task submitted",
		"chapters", req.ChapterCount,
		"word_count", req.WordCount,
		"genre", req.Genre,
		"style", req.Style,
		"queued", ticket.Queued(),
	)
	return task.ID, nil
}

// schedule 登记任务并启动其执行 goroutine
func (o *Orchestrator) schedule(task *entity.Task, ticket *admission.Ticket, ledger *quota.Ledger) {
	waitCtx, cancelWait := context.WithCancel(o.baseCtx)
	h := &runHandle{
		task:       task,
		run:        generation.NewRun(task, ledger),
		ticket:     ticket,
		ledger:     ledger,
		waitCtx:    waitCtx,
		cancelWait: cancelWait,
		waited:     make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[task.ID] = h
	o.snapshots[task.ID] = task.Clone()
	o.track(task.ID, task.Status)
	o.mu.Unlock()

	o.publish(o.baseCtx, task, entity.TaskEvent{Type: entity.TaskEventStatus, Success: true})

	o.wg.Add(1)
	go o.execute(h)
}

func (o *Orchestrator) execute(h *runHandle) {
	defer o.wg.Done()
	defer o.finish(h)

	ctx := logger.WithTask(o.baseCtx, h.task.ID, h.task.Identity)

	err := h.ticket.Wait(h.waitCtx)
	if err == nil && h.run.Cancelled() {
		err = apperrors.ErrCancelled
	}
	if err != nil {
		if h.run.Cancelled() {
			o.failQueued(ctx, h)
		}
		close(h.waited)
		return
	}
	close(h.waited)

	_ = o.engine.Execute(o.baseCtx, h.run)
}

// finish 归还槽位与未用完的配额并注销任务
func (o *Orchestrator) finish(h *runHandle) {
	h.ticket.Release()
	h.cancelWait()
	if err := h.ledger.Close(context.Background()); err != nil {
		logger.Warn(o.baseCtx, "quota refund failed", "task_id", h.task.ID, "error", err.Error())
	}

	o.mu.Lock()
	delete(o.runs, h.task.ID)
	if h.task.Status.IsTerminal() {
		delete(o.snapshots, h.task.ID)
		delete(o.statusOf, h.task.ID)
	}
	o.mu.Unlock()
}

// failQueued 在等待槽位期间被取消的任务立即失败
func (o *Orchestrator) failQueued(ctx context.Context, h *runHandle) {
	t := h.task
	if err := t.Fail(generation.FailureCancelled, "cancelled while waiting for a generation slot", o.now()); err != nil {
		return
	}
	if err := o.store.Save(context.WithoutCancel(ctx), t); err != nil {
		logger.Error(ctx, "failed to persist cancelled task", err)
	}
	o.TaskSaved(t.Clone())
	o.publish(ctx, t, entity.TaskEvent{Type: entity.TaskEventStatus, Success: false, Error: t.Error.Message})
	metrics.TasksFinished.WithLabelValues(string(entity.TaskStatusFailed)).Inc()
	logger.Info(ctx, "task cancelled while queued")
}

// GetStatus 查询任务状态
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (entity.StatusView, error) {
	t, err := o.lookup(ctx, id)
	if err != nil {
		return entity.StatusView{}, err
	}
	return t.View(), nil
}

// GetResult 返回已完成任务的完整内容
func (o *Orchestrator) GetResult(ctx context.Context, id string) (*entity.Task, error) {
	t, err := o.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case entity.TaskStatusCompleted:
		return t, nil
	case entity.TaskStatusFailed:
		return nil, apperrors.ErrNotReady.WithDetail("task failed: " + t.Error.Message)
	default:
		return nil, apperrors.ErrNotReady.WithDetail("task is " + string(t.Status))
	}
}

// lookup 优先读取本进程的最新快照
func (o *Orchestrator) lookup(ctx context.Context, id string) (*entity.Task, error) {
	o.mu.RLock()
	snap, ok := o.snapshots[id]
	o.mu.RUnlock()
	if ok {
		return snap.Clone(), nil
	}
	t, err := o.store.Load(ctx, id)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "load task")
	}
	return t, nil
}

// Cancel 请求取消任务
// 执行中的任务在下一个步骤边界失败；等待槽位的任务立即失败
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.RLock()
	h, owned := o.runs[id]
	status := o.statusOf[id]
	o.mu.RUnlock()

	if !owned {
		return o.cancelStored(ctx, id)
	}
	if status.IsTerminal() {
		return apperrors.ErrConflict.WithDetail("task already " + string(status))
	}

	h.run.Cancel()
	if h.ticket.Queued() {
		h.cancelWait()
		select {
		case <-h.waited:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.Info(logger.WithTask(ctx, id, h.task.Identity), "task cancellation requested")
	return nil
}

// cancelStored 取消不由本进程执行的任务
func (o *Orchestrator) cancelStored(ctx context.Context, id string) error {
	t, err := o.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return apperrors.ErrConflict.WithDetail("task already " + string(t.Status))
	}
	if err := t.Fail(generation.FailureCancelled, "cancelled by caller", o.now()); err != nil {
		return err
	}
	if err := o.store.Save(ctx, t); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreError, "persist task")
	}
	o.TaskSaved(t)
	o.publish(ctx, t, entity.TaskEvent{Type: entity.TaskEventStatus, Success: false, Error: t.Error.Message})
	return nil
}

// Recover 重新调度存储中尚未结束的任务，返回恢复的数量
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	tasks, err := o.store.ListActive(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeStoreError, "list active tasks")
	}

	resumed := 0
	for _, t := range tasks {
		o.mu.RLock()
		_, running := o.runs[t.ID]
		o.mu.RUnlock()
		if running {
			continue
		}
		status, chapters := t.Status, len(t.Chapters)
		ticket := o.admission.Resume()
		queued := ticket.Queued()
		// 预占额度在上次运行中已结算，恢复后的用量全部按超出计费
		o.schedule(t, ticket, quota.NewLedger(o.budget, t.Identity, 0))
		resumed++
		logger.Info(logger.WithTask(ctx, t.ID, t.Identity), "task recovered",
			"status", string(status),
			"chapters", chapters,
			"queued", queued,
		)
	}
	return resumed, nil
}

// Shutdown 停止接收新任务，等待执行中的任务到达步骤边界
// ctx 结束时中断仍在进行的模型调用；任务保持非终态，重启后由 Recover 继续
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	handles := make([]*runHandle, 0, len(o.runs))
	for _, h := range o.runs {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.run.Stop()
		h.cancelWait()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.stopAll()
		return nil
	case <-ctx.Done():
		o.stopAll()
		<-done
		return ctx.Err()
	}
}

// TaskSaved 实现 generation.Observer
func (o *Orchestrator) TaskSaved(t *entity.Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, owned := o.runs[t.ID]; owned {
		o.snapshots[t.ID] = t
	}
	o.track(t.ID, t.Status)
}

// track 更新状态计数，调用方需持有 mu
// 不再由本进程持有的终态任务只保留计数
func (o *Orchestrator) track(id string, status entity.TaskStatus) {
	prev, seen := o.statusOf[id]
	if seen && prev == status {
		return
	}
	if seen {
		o.counts[prev]--
	} else {
		o.total++
	}
	o.counts[status]++
	if _, owned := o.runs[id]; !owned && status.IsTerminal() {
		delete(o.statusOf, id)
		return
	}
	o.statusOf[id] = status
}

// TaskEvent 实现 generation.Observer
func (o *Orchestrator) TaskEvent(ctx context.Context, ev entity.TaskEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn(ctx, "publish task event failed", "event_type", string(ev.Type), "error", err.Error())
	}
}

// publish 发布编排器自身产生的事件
func (o *Orchestrator) publish(ctx context.Context, t *entity.Task, ev entity.TaskEvent) {
	ev.ID = uuid.NewString()
	ev.TaskID = t.ID
	ev.Identity = t.Identity
	ev.Status = t.Status
	ev.Progress = t.Progress
	ev.OccurredAt = o.now().UTC()
	o.TaskEvent(ctx, ev)
}
