// Package render 将已完成的任务导出为可发布的文本
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ai-novel-orchestrator/internal/domain/entity"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

// Format 导出格式
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
	FormatZhihu    Format = "zhihu"
	FormatJSON     Format = "json"
)

// Formats 支持的全部格式
var Formats = []Format{FormatMarkdown, FormatPlain, FormatZhihu, FormatJSON}

const (
	continued     = "（未完待续）"
	postSeparator = "\n\n=====\n\n"
)

// ParseFormat 解析格式名，空串视为 markdown
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatMarkdown, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", apperrors.ErrInvalidRequest.WithDetail(fmt.Sprintf("unknown export format %q", s))
}

// Render 导出任务，只接受已完成的任务
func Render(task *entity.Task, format Format) ([]byte, error) {
	if err := ready(task); err != nil {
		return nil, err
	}
	switch format {
	case FormatMarkdown:
		return markdown(task), nil
	case FormatPlain:
		return plain(task), nil
	case FormatZhihu:
		posts, _ := Posts(task)
		return []byte(strings.Join(posts, postSeparator)), nil
	case FormatJSON:
		return document(task)
	}
	return nil, apperrors.ErrInvalidRequest.WithDetail(fmt.Sprintf("unknown export format %q", format))
}

// Posts 知乎分章发布，每章一篇
func Posts(task *entity.Task) ([]string, error) {
	if err := ready(task); err != nil {
		return nil, err
	}
	title := bookTitle(task)
	posts := make([]string, 0, len(task.Chapters))
	for i, ch := range task.Chapters {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s - %s\n\n", title, chapterHeading(ch))
		if i == 0 {
			if note := authorNote(task); note != "" {
				fmt.Fprintf(&b, "> %s\n\n", note)
			}
		}
		b.WriteString(strings.TrimSpace(ch.Content))
		if i < len(task.Chapters)-1 {
			b.WriteString("\n\n---\n\n")
			b.WriteString(continued)
		}
		posts = append(posts, b.String())
	}
	return posts, nil
}

// ContentType HTTP 响应类型
func ContentType(format Format) string {
	switch format {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename 下载文件名
func Filename(task *entity.Task, format Format) string {
	ext := map[Format]string{FormatMarkdown: "md", FormatPlain: "txt", FormatZhihu: "zhihu.txt", FormatJSON: "json"}[format]
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, bookTitle(task))
	return name + "." + ext
}

func ready(task *entity.Task) error {
	if task == nil {
		return apperrors.ErrNotFound
	}
	if task.Status != entity.TaskStatusCompleted {
		return apperrors.ErrNotReady.WithDetail("task is " + string(task.Status))
	}
	return nil
}

func markdown(task *entity.Task) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", bookTitle(task))
	if note := authorNote(task); note != "" {
		fmt.Fprintf(&b, "> %s\n\n", note)
	}
	for _, ch := range task.Chapters {
		fmt.Fprintf(&b, "## %s\n\n", chapterHeading(ch))
		b.WriteString(strings.TrimSpace(ch.Content))
		b.WriteString("\n\n---\n\n")
	}
	return b.Bytes()
}

func plain(task *entity.Task) []byte {
	var b bytes.Buffer
	b.WriteString(bookTitle(task))
	b.WriteString("\n\n")
	for _, ch := range task.Chapters {
		b.WriteString(chapterHeading(ch))
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(ch.Content))
		b.WriteString("\n\n")
	}
	return bytes.TrimRight(b.Bytes(), "\n")
}

type exportChapter struct {
	Index       int     `json:"index"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	WordCount   int     `json:"word_count"`
	ReviewScore float64 `json:"review_score,omitempty"`
}

type exportDocument struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	AuthorNote string             `json:"author_note,omitempty"`
	Genre      string             `json:"genre"`
	Style      string             `json:"style"`
	Characters []entity.Character `json:"characters,omitempty"`
	Chapters   []exportChapter    `json:"chapters"`
	Metadata   entity.Metadata    `json:"metadata"`
}

func document(task *entity.Task) ([]byte, error) {
	doc := exportDocument{
		ID:         task.ID,
		Title:      bookTitle(task),
		AuthorNote: authorNote(task),
		Genre:      task.Request.Genre,
		Style:      task.Request.Style,
		Chapters:   make([]exportChapter, 0, len(task.Chapters)),
		Metadata:   task.Metadata,
	}
	if task.Outline != nil {
		doc.Characters = task.Outline.Characters
	}
	for _, ch := range task.Chapters {
		doc.Chapters = append(doc.Chapters, exportChapter{
			Index:       ch.Index,
			Title:       ch.Title,
			Content:     ch.Content,
			WordCount:   ch.WordCount,
			ReviewScore: ch.ReviewScore,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func bookTitle(task *entity.Task) string {
	if task.Outline != nil && strings.TrimSpace(task.Outline.Title) != "" {
		return strings.TrimSpace(task.Outline.Title)
	}
	return "未命名"
}

func authorNote(task *entity.Task) string {
	if task.Outline == nil {
		return ""
	}
	return strings.TrimSpace(task.Outline.Logline)
}

// chapterHeading 标题本身已带章号时不再重复
func chapterHeading(ch entity.Chapter) string {
	prefix := fmt.Sprintf("第%d章", ch.Index)
	title := strings.TrimSpace(ch.Title)
	if title == "" || title == prefix {
		return prefix
	}
	if strings.HasPrefix(title, prefix) {
		return title
	}
	return prefix + " " + title
}
