package generation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/infrastructure/llm"
	"ai-novel-orchestrator/internal/workflow/prompt"
)

func (e *Engine) outline(ctx context.Context, run *Run) error {
	t := run.task
	genre, style := e.genreAndStyle(t.Request)
	t.SetProgress(progressOutlineStart, "正在构思大纲", e.now())

	var outline *entity.Outline
	err := e.call(ctx, run, prompt.RolePlanner,
		prompt.Input{Request: t.Request, Genre: genre, Style: style},
		llm.Params{Temperature: temperaturePlanner, MaxTokens: e.cfg.OutlineMaxTokens},
		func(text string) error {
			o, err := parseOutline(text, t.Request)
			outline = o
			return err
		},
	)
	if err != nil {
		return err
	}

	if err := t.SetOutline(outline, e.now()); err != nil {
		return err
	}
	t.SetProgress(progressOutlineDone, fmt.Sprintf("大纲完成：《%s》", outline.Title), e.now())
	return e.persist(ctx, run)
}

func (e *Engine) writeChapter(ctx context.Context, run *Run, index int) error {
	t := run.task
	total := t.Request.ChapterCount
	spec := t.Outline.Chapters[index-1]
	genre, style := e.genreAndStyle(t.Request)

	t.SetProgress(band(progressOutlineDone, progressWritingDone, index-1, total),
		fmt.Sprintf("正在写作第 %d/%d 章：%s", index, total, spec.Title), e.now())

	in := prompt.Input{
		Request:  t.Request,
		Genre:    genre,
		Style:    style,
		Outline:  t.Outline,
		Chapter:  &spec,
		PrevTail: e.previousTail(t, index),
		Digest:   e.synopsisDigest(t, index),
	}

	var content string
	err := e.call(ctx, run, prompt.RoleWriter, in,
		llm.Params{Temperature: temperatureWriter, MaxTokens: e.cfg.ChapterMaxTokens},
		func(text string) error {
			content = cleanDraft(text, spec.Title)
			if content == "" {
				return malformed("chapter %d draft is empty", index)
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	ch := entity.Chapter{
		Index:     index,
		Title:     spec.Title,
		Content:   content,
		WordCount: entity.CountWords(content),
	}
	if err := t.AppendChapter(ch, e.now()); err != nil {
		return err
	}
	t.SetProgress(band(progressOutlineDone, progressWritingDone, index, total),
		fmt.Sprintf("第 %d/%d 章完成", index, total), e.now())
	return e.persist(ctx, run)
}

// polish 编辑逐章润色，随后评审打分并修订低分章节
func (e *Engine) polish(ctx context.Context, run *Run) error {
	t := run.task
	total := len(t.Chapters)

	if e.cfg.PolishEnabled {
		for i := 1; i <= total; i++ {
			// 恢复执行时跳过已润色的章节
			if t.Chapters[i-1].Revision > 0 {
				continue
			}
			idx := i
			if err := e.step(ctx, run, entity.StageEdit, idx, func() error {
				return e.edit(ctx, run, idx, "", band(progressWritingDone, progressEditDone, idx, total))
			}); err != nil {
				return err
			}
		}
	}
	t.SetProgress(progressEditDone, "润色完成", e.now())

	if !e.cfg.ReviewEnabled {
		return nil
	}

	// 恢复执行时评审结论已落盘，只继续未完成的修订
	if !t.Metadata.Reviewed {
		if err := e.step(ctx, run, entity.StageReview, 0, func() error { return e.review(ctx, run) }); err != nil {
			return err
		}
	}

	pending := append([]int(nil), t.Metadata.PendingRevisions...)
	for i, idx := range pending {
		idx, done := idx, i+1
		if err := e.step(ctx, run, entity.StageRevise, idx, func() error {
			return e.edit(ctx, run, idx, t.Chapters[idx-1].ReviewFeedback,
				band(progressReviewDone, progressRevisionDone, done, len(pending)))
		}); err != nil {
			return err
		}
	}
	return nil
}

// edit 编辑角色原位改写一章；feedback 非空时为按评审意见修订
func (e *Engine) edit(ctx context.Context, run *Run, index int, feedback string, progress int) error {
	t := run.task
	ch := t.Chapters[index-1]
	spec := t.Outline.Chapters[index-1]
	_, style := e.genreAndStyle(t.Request)

	label := fmt.Sprintf("正在润色第 %d/%d 章", index, len(t.Chapters))
	if feedback != "" {
		label = fmt.Sprintf("正在按评审意见修订第 %d 章", index)
	}
	t.SetProgress(0, label, e.now())

	in := prompt.Input{
		Request:  t.Request,
		Style:    style,
		Outline:  t.Outline,
		Chapter:  &spec,
		Draft:    ch.Content,
		PrevTail: e.previousTail(t, index),
		NextHead: e.nextHead(t, index),
		Feedback: feedback,
	}

	var content string
	err := e.call(ctx, run, prompt.RoleEditor, in,
		llm.Params{Temperature: temperatureEditor, MaxTokens: e.cfg.ChapterMaxTokens},
		func(text string) error {
			content = cleanDraft(text, spec.Title)
			if content == "" {
				return malformed("edited chapter %d is empty", index)
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	if err := t.ReplaceChapter(index, content, e.now()); err != nil {
		return err
	}
	t.CompleteRevision(index)
	t.SetProgress(progress, "", e.now())
	return e.persist(ctx, run)
}

// review 评审全书并记录待修订章节；输出始终不可解析时使用中性分而不是失败
func (e *Engine) review(ctx context.Context, run *Run) error {
	t := run.task
	t.SetProgress(progressEditDone, "正在评审全书", e.now())

	var rv *review
	err := e.call(ctx, run, prompt.RoleReviewer,
		prompt.Input{Request: t.Request, Outline: t.Outline, Digest: e.manuscriptDigest(t)},
		llm.Params{Temperature: temperatureReviewer, MaxTokens: e.cfg.ReviewMaxTokens},
		func(text string) error {
			r, err := parseReview(text, len(t.Chapters))
			rv = r
			return err
		},
	)
	if err != nil {
		if failureCode(err) != FailureMalformed {
			return err
		}
		rv = neutralReview(len(t.Chapters), neutralReviewScore)
		rv.Neutral = true
	}

	for i := range t.Chapters {
		cr := rv.Chapters[i+1]
		t.Chapters[i].ReviewScore = cr.Score
		t.Chapters[i].ReviewFeedback = cr.Feedback
	}
	t.Metadata.ReviewScore = rv.Overall
	if err := t.MarkReviewed(e.revisionTargets(rv), e.now()); err != nil {
		return err
	}
	t.SetProgress(progressReviewDone, fmt.Sprintf("评审完成：%.0f 分", rv.Overall*100), e.now())
	return e.persist(ctx, run)
}

// revisionTargets 低于阈值的章节按分数升序，最多 max_revisions 章
func (e *Engine) revisionTargets(rv *review) []int {
	if rv == nil || rv.Neutral || e.cfg.MaxRevisions <= 0 {
		return nil
	}
	var targets []int
	for idx, cr := range rv.Chapters {
		if cr.Score < e.cfg.ReviewThreshold {
			targets = append(targets, idx)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		a, b := rv.Chapters[targets[i]].Score, rv.Chapters[targets[j]].Score
		if a != b {
			return a < b
		}
		return targets[i] < targets[j]
	})
	if len(targets) > e.cfg.MaxRevisions {
		targets = targets[:e.cfg.MaxRevisions]
	}
	return targets
}

// previousTail 上一章结尾
func (e *Engine) previousTail(t *entity.Task, index int) string {
	if index < 2 || index-2 >= len(t.Chapters) {
		return ""
	}
	return tailRunes(t.Chapters[index-2].Content, e.cfg.ContextTailRunes)
}

// nextHead 下一章开头
func (e *Engine) nextHead(t *entity.Task, index int) string {
	if index >= len(t.Chapters) {
		return ""
	}
	return truncateRunes(t.Chapters[index].Content, e.cfg.ContextTailRunes)
}

// synopsisDigest 最近若干章的梗概，每条截断
func (e *Engine) synopsisDigest(t *entity.Task, index int) string {
	if t.Outline == nil || index < 2 || e.cfg.ContextDigestCount <= 0 {
		return ""
	}
	from := index - 1 - e.cfg.ContextDigestCount
	if from < 0 {
		from = 0
	}
	lines := make([]string, 0, index-1-from)
	for _, spec := range t.Outline.Chapters[from : index-1] {
		lines = append(lines, fmt.Sprintf("[第%d章 %s] %s", spec.Index, spec.Title,
			truncateRunes(spec.Synopsis, e.cfg.ContextDigestRunes)))
	}
	return strings.Join(lines, "\n")
}

// manuscriptDigest 每章开头摘录，供评审使用
func (e *Engine) manuscriptDigest(t *entity.Task) string {
	var b strings.Builder
	for _, ch := range t.Chapters {
		fmt.Fprintf(&b, "第%d章 %s（%d字）\n%s\n\n", ch.Index, ch.Title, ch.WordCount,
			truncateRunes(ch.Content, e.cfg.ContextDigestRunes))
	}
	return strings.TrimSpace(b.String())
}
