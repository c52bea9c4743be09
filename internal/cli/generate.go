package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"ai-novel-orchestrator/internal/application/admission"
	"ai-novel-orchestrator/internal/application/generation"
	"ai-novel-orchestrator/internal/application/orchestrator"
	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/application/render"
	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/infrastructure/llm"
	"ai-novel-orchestrator/internal/infrastructure/persistence/memory"
	"ai-novel-orchestrator/internal/workflow/prompt"
)

type generateOptions struct {
	theme    string
	genre    string
	style    string
	words    int
	chapters int
	format   string
	out      string
	save     string
	identity string
	interval time.Duration
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "生成一部小说并导出",
		Example: `  novelctl generate --theme "重返故乡的程序员" --genre workplace --chapters 6 --out novel.md
  novelctl generate --theme "雨夜来信" --format zhihu --save task.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configDir)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			client := llm.NewClient(cfg, llm.NewEinoFactory(cfg))
			return runGenerate(ctx, cfg, client, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.theme, "theme", "", "故事主题（必填）")
	f.StringVar(&opts.genre, "genre", "", "题材，见 novelctl catalog")
	f.StringVar(&opts.style, "style", "", "文风，见 novelctl catalog")
	f.IntVar(&opts.words, "words", 0, "目标总字数")
	f.IntVar(&opts.chapters, "chapters", 0, "章节数")
	f.StringVar(&opts.format, "format", "markdown", "导出格式 markdown|plain|zhihu|json")
	f.StringVarP(&opts.out, "out", "o", "-", "输出文件，- 表示标准输出")
	f.StringVar(&opts.save, "save", "", "同时把完整任务保存为 JSON，可用 render 重新导出")
	f.StringVar(&opts.identity, "user", "local", "配额身份")
	f.DurationVar(&opts.interval, "poll", 500*time.Millisecond, "进度刷新间隔")
	_ = cmd.MarkFlagRequired("theme")
	return cmd
}

// runGenerate 在进程内提交并跟踪一个任务，ctx 结束时取消任务
func runGenerate(ctx context.Context, cfg *config.Config, client llm.Client, opts generateOptions, stdout, stderr io.Writer) error {
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.interval <= 0 {
		opts.interval = 500 * time.Millisecond
	}

	store := memory.NewTaskStore(0)
	catalog := prompt.DefaultCatalog()
	engine := generation.NewEngine(client, prompt.NewRegistry(), catalog, store, cfg)
	orch := orchestrator.New(cfg, store, quota.NewMemoryBudget(quota.LimitsFromConfig(cfg.Quota)),
		admission.NewController(cfg.Admission), engine, catalog, nil)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	}()

	id, err := orch.Submit(ctx, opts.identity, entity.Request{
		Theme:        opts.theme,
		Genre:        opts.genre,
		Style:        opts.style,
		WordCount:    opts.words,
		ChapterCount: opts.chapters,
	})
	if err != nil {
		return err
	}
	pal := newPalette(stderr)
	fmt.Fprintln(stderr, pal.title.Render("任务 "+id+" 已提交"))

	view, err := follow(ctx, orch, id, opts.interval, stderr, pal)
	if err != nil {
		return err
	}
	if view.Status == entity.TaskStatusFailed {
		return fmt.Errorf("任务失败 [%s] %s", view.Error.Code, view.Error.Message)
	}

	task, err := orch.GetResult(context.Background(), id)
	if err != nil {
		return err
	}
	if opts.save != "" {
		data, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.save, data, 0o644); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
	}
	body, err := render.Render(task, format)
	if err != nil {
		return err
	}
	if err := writeOutput(opts.out, body, stdout); err != nil {
		return err
	}
	fmt.Fprintln(stderr, pal.success.Render(fmt.Sprintf("完成：%d 章，%d 字，%d tokens", len(task.Chapters), task.Metadata.TotalWords, task.Metadata.TotalTokens)))
	return nil
}

// follow 轮询直到任务进入终态，ctx 结束时请求取消并继续等待终态
func follow(ctx context.Context, orch *orchestrator.Orchestrator, id string, interval time.Duration, w io.Writer, pal palette) (entity.StatusView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress, lastLabel := -1, ""
	cancelled := false
	done := ctx.Done()
	for {
		view, err := orch.GetStatus(context.Background(), id)
		if err != nil {
			return view, err
		}
		if view.Progress != lastProgress || view.StageLabel != lastLabel {
			fmt.Fprintln(w, pal.subtle.Render(fmt.Sprintf("[%3d%%] %s", view.Progress, view.StageLabel)))
			lastProgress, lastLabel = view.Progress, view.StageLabel
		}
		if view.Status.IsTerminal() {
			return view, nil
		}

		select {
		case <-done:
			if !cancelled {
				cancelled = true
				done = nil
				fmt.Fprintln(w, pal.failure.Render("正在取消…"))
				_ = orch.Cancel(context.Background(), id)
			}
		case <-ticker.C:
		}
	}
}
