// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "ai-novel-orchestrator/pkg/errors"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusOutlining TaskStatus = "outlining"
	TaskStatusWriting   TaskStatus = "writing"
	TaskStatusPolishing TaskStatus = "polishing"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// nextStatus 正向推进表，failed 可由任意非终态进入
var nextStatus = map[TaskStatus]TaskStatus{
	TaskStatusPending:   TaskStatusOutlining,
	TaskStatusOutlining: TaskStatusWriting,
	TaskStatusWriting:   TaskStatusPolishing,
	TaskStatusPolishing: TaskStatusCompleted,
}

// IsValid 是否为已知状态
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusOutlining, TaskStatusWriting,
		TaskStatusPolishing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo 状态只能向前推进
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TaskStatusFailed {
		return true
	}
	return nextStatus[s] == next
}

// Request 生成请求，创建后不可变
type Request struct {
	Theme        string `json:"theme"`
	Genre        string `json:"genre"`
	Style        string `json:"style"`
	WordCount    int    `json:"word_count"`
	ChapterCount int    `json:"chapter_count"`
}

// Character 大纲中的角色
type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

// ChapterSpec 单章规划
type ChapterSpec struct {
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	Synopsis    string   `json:"synopsis"`
	KeyEvents   []string `json:"key_events,omitempty"`
	Mood        string   `json:"mood,omitempty"`
	TargetWords int      `json:"target_words,omitempty"`
}

// Outline 全书大纲
type Outline struct {
	Title      string        `json:"title"`
	Logline    string        `json:"logline,omitempty"`
	Characters []Character   `json:"characters,omitempty"`
	Chapters   []ChapterSpec `json:"chapters"`
}

// Chapter 已写成的章节
type Chapter struct {
	Index          int     `json:"index"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	WordCount      int     `json:"word_count"`
	Revision       int     `json:"revision"`
	ReviewScore    float64 `json:"review_score,omitempty"`
	ReviewFeedback string  `json:"review_feedback,omitempty"`
}

// Metadata 累计统计
type Metadata struct {
	TotalWords  int     `json:"total_words"`
	TotalTokens int64   `json:"total_tokens"`
	ModelCalls  int     `json:"model_calls"`
	Attempts    int     `json:"attempts"`
	ReviewScore float64 `json:"review_score,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	// Reviewed 评审已完成，PendingRevisions 为尚未修订的章节
	Reviewed         bool  `json:"reviewed,omitempty"`
	PendingRevisions []int `json:"pending_revisions,omitempty"`
}

// TaskError 任务失败原因
type TaskError struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Stage   TaskStatus `json:"stage"`
}

// Task 一次端到端的生成任务
type Task struct {
	ID          string     `json:"id"`
	Identity    string     `json:"identity"`
	Request     Request    `json:"request"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	StageLabel  string     `json:"stage_label"`
	Outline     *Outline   `json:"outline,omitempty"`
	Chapters    []Chapter  `json:"chapters"`
	Metadata    Metadata   `json:"metadata"`
	Error       *TaskError `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask 创建 pending 状态的任务
func NewTask(id, identity string, req Request, now time.Time) *Task {
	return &Task{
		ID:         id,
		Identity:   identity,
		Request:    req,
		Status:     TaskStatusPending,
		StageLabel: "等待调度",
		Chapters:   []Chapter{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo 推进状态
func (t *Task) TransitionTo(next TaskStatus, label string, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return apperrors.ErrConflict.WithDetail(fmt.Sprintf("illegal transition %s -> %s", t.Status, next))
	}
	if next == TaskStatusPolishing && len(t.Chapters) != t.Request.ChapterCount {
		return apperrors.ErrConflict.WithDetail(fmt.Sprintf("polishing requires %d chapters, have %d", t.Request.ChapterCount, len(t.Chapters)))
	}
	t.Status = next
	if label != "" {
		t.StageLabel = label
	}
	t.UpdatedAt = now
	if next == TaskStatusCompleted {
		t.Progress = 100
		t.CompletedAt = &now
	}
	return nil
}

// SetProgress 更新进度，进度只增不减；未完成时最高 99
func (t *Task) SetProgress(progress int, label string, now time.Time) {
	if t.Status.IsTerminal() {
		return
	}
	if progress > 99 {
		progress = 99
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if label != "" {
		t.StageLabel = label
	}
	t.UpdatedAt = now
}

// Fail 将任务置为失败，错误一经设置不再改变
func (t *Task) Fail(code, message string, now time.Time) error {
	if t.Status.IsTerminal() {
		return apperrors.ErrConflict.WithDetail(fmt.Sprintf("task already %s", t.Status))
	}
	t.Error = &TaskError{Code: code, Message: message, Stage: t.Status}
	t.Status = TaskStatusFailed
	t.StageLabel = "生成失败"
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}

// SetOutline 写入大纲，只允许一次
func (t *Task) SetOutline(o *Outline, now time.Time) error {
	if t.Outline != nil {
		return apperrors.ErrConflict.WithDetail("outline already set")
	}
	if o == nil || len(o.Chapters) != t.Request.ChapterCount {
		return apperrors.ErrConflict.WithDetail("outline chapter count mismatch")
	}
	t.Outline = o
	t.UpdatedAt = now
	return nil
}

// AppendChapter 按顺序追加章节
func (t *Task) AppendChapter(ch Chapter, now time.Time) error {
	if t.Outline == nil {
		return apperrors.ErrConflict.WithDetail("outline required before drafting")
	}
	if len(t.Chapters) >= t.Request.ChapterCount {
		return apperrors.ErrConflict.WithDetail("all chapters already drafted")
	}
	if ch.Index != len(t.Chapters)+1 {
		return apperrors.ErrConflict.WithDetail(fmt.Sprintf("chapter index %d out of order", ch.Index))
	}
	t.Chapters = append(t.Chapters, ch)
	t.Metadata.TotalWords += ch.WordCount
	t.UpdatedAt = now
	return nil
}

// ReplaceChapter 润色阶段原位替换章节正文
func (t *Task) ReplaceChapter(index int, content string, now time.Time) error {
	if t.Status != TaskStatusPolishing {
		return apperrors.ErrConflict.WithDetail("chapters are only rewritten while polishing")
	}
	if index < 1 || index > len(t.Chapters) {
		return apperrors.ErrConflict.WithDetail(fmt.Sprintf("chapter %d does not exist", index))
	}
	ch := &t.Chapters[index-1]
	words := CountWords(content)
	t.Metadata.TotalWords += words - ch.WordCount
	ch.Content = content
	ch.WordCount = words
	ch.Revision++
	t.UpdatedAt = now
	return nil
}

// MarkReviewed 记录评审结论，只允许在润色阶段设置一次
func (t *Task) MarkReviewed(pending []int, now time.Time) error {
	if t.Status != TaskStatusPolishing {
		return apperrors.ErrConflict.WithDetail("reviews are only recorded while polishing")
	}
	if t.Metadata.Reviewed {
		return apperrors.ErrConflict.WithDetail("review already recorded")
	}
	for _, idx := range pending {
		if idx < 1 || idx > len(t.Chapters) {
			return apperrors.ErrConflict.WithDetail(fmt.Sprintf("chapter %d does not exist", idx))
		}
	}
	t.Metadata.Reviewed = true
	t.Metadata.PendingRevisions = append([]int(nil), pending...)
	t.UpdatedAt = now
	return nil
}

// CompleteRevision 将章节移出待修订列表
func (t *Task) CompleteRevision(index int) {
	pending := t.Metadata.PendingRevisions[:0]
	for _, idx := range t.Metadata.PendingRevisions {
		if idx != index {
			pending = append(pending, idx)
		}
	}
	if len(pending) == 0 {
		pending = nil
	}
	t.Metadata.PendingRevisions = pending
}

// AddUsage 累加一次模型调用的用量
func (t *Task) AddUsage(tokens int64, attempts int, provider string) {
	if tokens > 0 {
		t.Metadata.TotalTokens += tokens
	}
	t.Metadata.ModelCalls++
	t.Metadata.Attempts += attempts
	if provider != "" {
		t.Metadata.Provider = provider
	}
}

// Clone 深拷贝
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		panic(fmt.Sprintf("clone task %s: %v", t.ID, err))
	}
	var cp Task
	if err := json.Unmarshal(data, &cp); err != nil {
		panic(fmt.Sprintf("clone task %s: %v", t.ID, err))
	}
	return &cp
}

// StatusView 轮询视图
type StatusView struct {
	ID           string     `json:"id"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	StageLabel   string     `json:"stage_label"`
	ChaptersDone int        `json:"chapters_done"`
	ChapterCount int        `json:"chapter_count"`
	TotalTokens  int64      `json:"total_tokens"`
	TotalWords   int        `json:"total_words"`
	Error        *TaskError `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	OutlineReady bool       `json:"outline_ready"`
	Title        string     `json:"title,omitempty"`
}

// View 生成只读状态视图
func (t *Task) View() StatusView {
	v := StatusView{
		ID:           t.ID,
		Status:       t.Status,
		Progress:     t.Progress,
		StageLabel:   t.StageLabel,
		ChaptersDone: len(t.Chapters),
		ChapterCount: t.Request.ChapterCount,
		TotalTokens:  t.Metadata.TotalTokens,
		TotalWords:   t.Metadata.TotalWords,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		OutlineReady: t.Outline != nil,
	}
	if t.Error != nil {
		e := *t.Error
		v.Error = &e
	}
	if t.Outline != nil {
		v.Title = t.Outline.Title
	}
	return v
}
