package prompt

import (
	"fmt"
	"strings"

	"ai-novel-orchestrator/internal/domain/entity"
)

// Role 提示词角色
type Role string

const (
	RolePlanner  Role = "planner"
	RoleWriter   Role = "writer"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
)

// Roles 全部角色
var Roles = []Role{RolePlanner, RoleWriter, RoleEditor, RoleReviewer}

// Input 构造提示词所需的任务内容，各角色只读取自己需要的字段
type Input struct {
	Request entity.Request
	Genre   Genre
	Style   Style

	Outline *entity.Outline
	Chapter *entity.ChapterSpec

	// Draft 编辑角色待润色的正文
	Draft string
	// PrevTail 上一章结尾；NextHead 下一章开头
	PrevTail string
	NextHead string
	// Digest 写作时为前文摘要，评审时为各章摘录
	Digest string
	// Feedback 评审给出的修改意见
	Feedback string
	// Attempt 大于 1 表示上一次输出无法解析，需要加强格式约束
	Attempt int
}

// varsBuilder 将 Input 映射为模板变量，必须是纯函数
type varsBuilder func(in Input) map[string]any

var builders = map[Role]varsBuilder{
	RolePlanner:  plannerVars,
	RoleWriter:   writerVars,
	RoleEditor:   editorVars,
	RoleReviewer: reviewerVars,
}

func plannerVars(in Input) map[string]any {
	chapterWords := 0
	if in.Request.ChapterCount > 0 {
		chapterWords = in.Request.WordCount / in.Request.ChapterCount
	}
	return map[string]any{
		"theme":           strings.TrimSpace(in.Request.Theme),
		"genre":           in.Genre.Describe(),
		"style":           in.Style.Describe(),
		"word_count":      in.Request.WordCount,
		"chapter_count":   in.Request.ChapterCount,
		"chapter_words":   chapterWords,
		"format_reminder": formatReminder(in.Attempt),
	}
}

func writerVars(in Input) map[string]any {
	spec := chapterOrEmpty(in.Chapter)
	return map[string]any{
		"title":         outlineTitle(in.Outline),
		"genre":         in.Genre.Describe(),
		"style":         in.Style.Describe(),
		"characters":    FormatCharacters(in.Outline),
		"outline":       FormatOutline(in.Outline),
		"digest":        orNone(in.Digest, "（这是第一章）"),
		"prev_tail":     orNone(in.PrevTail, "（这是第一章）"),
		"index":         spec.Index,
		"chapter_title": spec.Title,
		"synopsis":      spec.Synopsis,
		"key_events":    orNone(strings.Join(spec.KeyEvents, "；"), "无"),
		"mood":          orNone(spec.Mood, "与大纲保持一致"),
		"target_words":  targetWords(spec, in.Request),
	}
}

func editorVars(in Input) map[string]any {
	spec := chapterOrEmpty(in.Chapter)
	return map[string]any{
		"title":         outlineTitle(in.Outline),
		"style":         in.Style.Describe(),
		"index":         spec.Index,
		"chapter_title": spec.Title,
		"synopsis":      spec.Synopsis,
		"prev_tail":     orNone(in.PrevTail, "（这是第一章）"),
		"next_head":     orNone(in.NextHead, "（这是最后一章）"),
		"feedback":      orNone(in.Feedback, "无，按常规标准润色"),
		"draft":         in.Draft,
	}
}

func reviewerVars(in Input) map[string]any {
	return map[string]any{
		"title":           outlineTitle(in.Outline),
		"outline":         FormatOutline(in.Outline),
		"digest":          in.Digest,
		"chapter_count":   in.Request.ChapterCount,
		"format_reminder": formatReminder(in.Attempt),
	}
}

// FormatOutline 将大纲渲染为逐章一行的文本
func FormatOutline(o *entity.Outline) string {
	if o == nil {
		return "（暂无）"
	}
	var b strings.Builder
	if o.Logline != "" {
		fmt.Fprintf(&b, "简介：%s\n", o.Logline)
	}
	for _, ch := range o.Chapters {
		fmt.Fprintf(&b, "第%d章 %s：%s\n", ch.Index, ch.Title, ch.Synopsis)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCharacters 渲染人物表
func FormatCharacters(o *entity.Outline) string {
	if o == nil || len(o.Characters) == 0 {
		return "（大纲未列出人物）"
	}
	lines := make([]string, 0, len(o.Characters))
	for _, c := range o.Characters {
		line := c.Name
		if c.Role != "" {
			line += "（" + c.Role + "）"
		}
		if c.Description != "" {
			line += "：" + c.Description
		}
		lines = append(lines, "- "+line)
	}
	return strings.Join(lines, "\n")
}

func formatReminder(attempt int) string {
	if attempt <= 1 {
		return ""
	}
	return "\n注意：上一次输出无法被解析为合法 JSON。这一次只输出一个 JSON 对象，不要包含 Markdown 代码块或任何其他文字。\n"
}

func targetWords(spec entity.ChapterSpec, req entity.Request) int {
	if spec.TargetWords > 0 {
		return spec.TargetWords
	}
	if req.ChapterCount > 0 {
		return req.WordCount / req.ChapterCount
	}
	return 0
}

func chapterOrEmpty(c *entity.ChapterSpec) entity.ChapterSpec {
	if c == nil {
		return entity.ChapterSpec{}
	}
	return *c
}

func outlineTitle(o *entity.Outline) string {
	if o == nil || o.Title == "" {
		return "未命名"
	}
	return o.Title
}

func orNone(s, none string) string {
	if strings.TrimSpace(s) == "" {
		return none
	}
	return s
}
