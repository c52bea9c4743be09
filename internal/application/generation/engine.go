// Package generation 按 大纲 → 逐章写作 → 润色评审 的顺序执行生成任务
package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/domain/repository"
	llmctx "ai-novel-orchestrator/internal/domain/service"
	"ai-novel-orchestrator/internal/infrastructure/llm"
	"ai-novel-orchestrator/internal/workflow/prompt"
	apperrors "ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/logger"
	"ai-novel-orchestrator/pkg/metrics"
)

// 各角色的采样温度
const (
	temperaturePlanner  float32 = 0.7
	temperatureWriter   float32 = 0.85
	temperatureEditor   float32 = 0.3
	temperatureReviewer float32 = 0.2
)

// neutralReviewScore 评审输出不可解析时使用的中性分
const neutralReviewScore = 0.6

// Observer 接收任务快照与事件
type Observer interface {
	// TaskSaved 每次持久化成功后调用，参数为快照副本
	TaskSaved(task *entity.Task)
	// TaskEvent 状态迁移或步骤完成
	TaskEvent(ctx context.Context, ev entity.TaskEvent)
}

type nopObserver struct{}

func (nopObserver) TaskSaved(*entity.Task)                      {}
func (nopObserver) TaskEvent(context.Context, entity.TaskEvent) {}

// Engine 阶段引擎
type Engine struct {
	client   llm.Client
	prompts  *prompt.Registry
	catalog  *prompt.Catalog
	store    repository.TaskStore
	observer Observer

	cfg     config.GenerationConfig
	ceiling int64
	now     func() time.Time
}

// NewEngine 创建阶段引擎
func NewEngine(client llm.Client, prompts *prompt.Registry, catalog *prompt.Catalog, store repository.TaskStore, cfg *config.Config) *Engine {
	gen := cfg.Generation
	if gen.MaxParseAttempts <= 0 {
		gen.MaxParseAttempts = 1
	}
	return &Engine{
		client:   client,
		prompts:  prompts,
		catalog:  catalog,
		store:    store,
		observer: nopObserver{},
		cfg:      gen,
		ceiling:  cfg.Quota.MaxTokensPerRequest,
		now:      time.Now,
	}
}

// WithObserver 设置观察者
func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observer = o
	}
	return e
}

// WithClock 替换时钟
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Execute 从任务当前持久化的进度继续执行直到终态
// 返回 ErrInterrupted 时任务保持非终态；其他错误均已将任务置为 failed
func (e *Engine) Execute(ctx context.Context, run *Run) error {
	t := run.task
	ctx = logger.WithTask(ctx, t.ID, t.Identity)
	started := e.now()

	err := e.execute(ctx, run)
	if errors.Is(err, ErrInterrupted) {
		logger.Info(ctx, "generation interrupted", "status", string(t.Status), "progress", t.Progress)
		return err
	}
	if err != nil {
		e.fail(ctx, run, err)
		return err
	}

	metrics.TasksFinished.WithLabelValues(string(entity.TaskStatusCompleted)).Inc()
	metrics.TaskDuration.Observe(e.now().Sub(started).Seconds())
	metrics.TaskWordCount.Observe(float64(t.Metadata.TotalWords))
	logger.Info(ctx, "generation completed",
		"chapters", len(t.Chapters),
		"words", t.Metadata.TotalWords,
		"tokens", t.Metadata.TotalTokens,
		"model_calls", t.Metadata.ModelCalls,
	)
	return nil
}

func (e *Engine) execute(ctx context.Context, run *Run) error {
	t := run.task

	if t.Status == entity.TaskStatusPending {
		if err := e.checkpoint(ctx, run); err != nil {
			return err
		}
		if err := e.transition(ctx, run, entity.TaskStatusOutlining, "正在构思大纲"); err != nil {
			return err
		}
	}

	if t.Status == entity.TaskStatusOutlining {
		if t.Outline == nil {
			if err := e.step(ctx, run, entity.StageOutline, 0, func() error { return e.outline(ctx, run) }); err != nil {
				return err
			}
		}
		if err := e.transition(ctx, run, entity.TaskStatusWriting, "开始写作"); err != nil {
			return err
		}
	}

	if t.Status == entity.TaskStatusWriting {
		for idx := len(t.Chapters) + 1; idx <= t.Request.ChapterCount; idx++ {
			idx := idx
			if err := e.step(ctx, run, entity.StageChapter, idx, func() error { return e.writeChapter(ctx, run, idx) }); err != nil {
				return err
			}
		}
		if err := e.transition(ctx, run, entity.TaskStatusPolishing, "正在润色"); err != nil {
			return err
		}
	}

	if t.Status == entity.TaskStatusPolishing {
		if err := e.polish(ctx, run); err != nil {
			return err
		}
		if err := e.checkpoint(ctx, run); err != nil {
			return err
		}
		return e.transition(ctx, run, entity.TaskStatusCompleted, "生成完成")
	}
	return nil
}

// checkpoint 步骤边界检查：取消、停止、上下文结束
func (e *Engine) checkpoint(ctx context.Context, run *Run) error {
	if run.Cancelled() {
		return apperrors.ErrCancelled.WithDetail("cancelled by caller")
	}
	if run.stopping.Load() || ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// call 构造提示词、调用模型并解析输出
// 单次调用的输出上限与计费均受 max_tokens_per_request 约束
// 解析失败时带格式提醒重新调用，总次数不超过 max_parse_attempts
func (e *Engine) call(ctx context.Context, run *Run, role prompt.Role, in prompt.Input, params llm.Params, parse func(text string) error) error {
	t := run.task
	ctx = llmctx.WithTaskID(llmctx.WithRole(ctx, string(role)), t.ID)
	if e.ceiling > 0 && (params.MaxTokens <= 0 || int64(params.MaxTokens) > e.ceiling) {
		params.MaxTokens = int(e.ceiling)
	}

	for attempt := 1; ; attempt++ {
		if err := e.checkpoint(ctx, run); err != nil {
			return err
		}
		in.Attempt = attempt
		p, err := e.prompts.Build(ctx, role, in)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternalError, "build prompt")
		}

		out, err := e.client.Complete(ctx, p, params)
		if err != nil {
			attempts := 1
			var ce *llm.CallError
			if errors.As(err, &ce) && ce.Attempts > 0 {
				attempts = ce.Attempts
			}
			e.charge(ctx, run, llm.BilledTokens(err), attempts, "")
			if ctx.Err() != nil && !run.Cancelled() {
				return ErrInterrupted
			}
			return callFailure(err)
		}
		e.charge(ctx, run, out.TokensUsed, out.Attempts, out.Provider)
		if e.ceiling > 0 && out.TokensUsed > e.ceiling {
			return budgetFailure(out.TokensUsed, e.ceiling)
		}

		perr := parse(out.Text)
		if perr == nil {
			return nil
		}
		if attempt >= e.cfg.MaxParseAttempts {
			return malformedFailure(perr)
		}
		logger.Warn(ctx, "model output rejected, asking again",
			"role", string(role),
			"attempt", attempt,
			"reason", perr.Error(),
		)
		if err := e.persist(ctx, run); err != nil {
			return err
		}
	}
}

// charge 记录一次模型调用的用量
func (e *Engine) charge(ctx context.Context, run *Run, tokens int64, attempts int, provider string) {
	if attempts <= 0 {
		attempts = 1
	}
	run.task.AddUsage(tokens, attempts, provider)
	if err := run.ledger.Charge(ctx, tokens); err != nil {
		logger.Warn(ctx, "quota reconcile failed", "tokens", tokens, "error", err.Error())
	}
}

// persist 写入存储；不受上下文取消影响，保证停止前的最后状态落盘
func (e *Engine) persist(ctx context.Context, run *Run) error {
	ctx = context.WithoutCancel(ctx)
	if err := e.store.Save(ctx, run.task); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreError, "persist task")
	}
	e.observer.TaskSaved(run.task.Clone())
	return nil
}

func (e *Engine) transition(ctx context.Context, run *Run, next entity.TaskStatus, label string) error {
	t := run.task
	if err := t.TransitionTo(next, label, e.now()); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError, "advance task")
	}
	if err := e.persist(ctx, run); err != nil {
		return err
	}
	e.emit(ctx, run, entity.TaskEvent{Type: entity.TaskEventStatus, Success: true})
	logger.Debug(ctx, "task status changed", "status", string(next), "progress", t.Progress)
	return nil
}

// step 执行一个步骤并上报耗时与用量
func (e *Engine) step(ctx context.Context, run *Run, stage entity.Stage, chapter int, fn func() error) error {
	t := run.task
	started := e.now()
	tokens, calls := t.Metadata.TotalTokens, t.Metadata.ModelCalls

	err := fn()
	if errors.Is(err, ErrInterrupted) {
		return err
	}

	elapsed := e.now().Sub(started)
	status := "success"
	ev := entity.TaskEvent{
		Type:       entity.TaskEventStage,
		Stage:      stage,
		Chapter:    chapter,
		Success:    err == nil,
		Tokens:     t.Metadata.TotalTokens - tokens,
		ModelCalls: t.Metadata.ModelCalls - calls,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		status = "failed"
		ev.Error = failureMessage(err)
	}
	metrics.StageDuration.WithLabelValues(string(stage), status).Observe(elapsed.Seconds())
	e.emit(ctx, run, ev)
	return err
}

func (e *Engine) emit(ctx context.Context, run *Run, ev entity.TaskEvent) {
	t := run.task
	ev.ID = uuid.NewString()
	ev.TaskID = t.ID
	ev.Identity = t.Identity
	ev.Status = t.Status
	ev.Progress = t.Progress
	ev.OccurredAt = e.now().UTC()
	e.observer.TaskEvent(ctx, ev)
}

// fail 将任务置为 failed，已写入的内容保留
func (e *Engine) fail(ctx context.Context, run *Run, cause error) {
	t := run.task
	code := failureCode(cause)
	if err := t.Fail(code, failureMessage(cause), e.now()); err != nil {
		logger.Warn(ctx, "task already terminal", "status", string(t.Status))
		return
	}
	if err := e.persist(ctx, run); err != nil {
		logger.Error(ctx, "failed to persist failed task", err)
	}
	e.emit(ctx, run, entity.TaskEvent{Type: entity.TaskEventStatus, Success: false, Error: t.Error.Message})
	metrics.TasksFinished.WithLabelValues(string(entity.TaskStatusFailed)).Inc()
	logger.Error(ctx, "generation failed", cause, "code", code, "stage", string(t.Error.Stage))
}

func (e *Engine) genreAndStyle(req entity.Request) (prompt.Genre, prompt.Style) {
	genre, ok := e.catalog.Genre(req.Genre)
	if !ok {
		genre = prompt.Genre{Name: prompt.GenreAuto}
	}
	style, _ := e.catalog.Style(req.Style)
	return genre, style
}
