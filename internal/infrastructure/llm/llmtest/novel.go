package llmtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"ai-novel-orchestrator/internal/infrastructure/llm"
)

// NovelModel 按调用角色返回合法输出的假模型，配合 ScriptedClient.Fallback 使用
type NovelModel struct {
	Chapters int
	Tokens   int64
	// Scores 指定章节的评审分，未指定的章节得 5 分
	Scores map[int]int
	// Override 返回 true 时使用其结果替代默认输出
	Override func(call Call) (Step, bool)

	mu     sync.Mutex
	drafts int
}

// NewNovelModel 创建 n 章的假模型，每次调用计 tokens
func NewNovelModel(n int, tokens int64) *NovelModel {
	return &NovelModel{Chapters: n, Tokens: tokens}
}

// Client 返回以该模型兜底的脚本客户端
func (m *NovelModel) Client(steps ...Step) *ScriptedClient {
	c := NewScriptedClient(steps...)
	c.Fallback = m.Step
	return c
}

// Drafts 已返回的初稿数
func (m *NovelModel) Drafts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts
}

// Step 实现 Fallback
func (m *NovelModel) Step(call Call) Step {
	if m.Override != nil {
		if s, ok := m.Override(call); ok {
			return s
		}
	}
	switch call.Role {
	case "planner":
		return Step{Text: "好的，以下是大纲：\n```json\n" + OutlineJSON(m.Chapters) + "\n```", Tokens: m.Tokens}
	case "writer":
		m.mu.Lock()
		m.drafts++
		d := m.drafts
		m.mu.Unlock()
		return Step{Text: fmt.Sprintf("第%d章的正文内容，结尾处留下悬念%d。", d, d), Tokens: m.Tokens}
	case "editor":
		return Step{Text: "润色后的正文。", Tokens: m.Tokens}
	case "reviewer":
		return Step{Text: ReviewJSON(m.Chapters, m.Scores), Tokens: m.Tokens}
	}
	return Step{Err: llm.Permanent(errors.New("unexpected role " + call.Role))}
}

// OutlineJSON n 章大纲，第 i 章标题为「标题i」，梗概为「梗概i」
func OutlineJSON(n int) string {
	type chapter struct {
		Index    int    `json:"index"`
		Title    string `json:"title"`
		Synopsis string `json:"synopsis"`
	}
	chapters := make([]chapter, n)
	for i := range chapters {
		chapters[i] = chapter{Index: i + 1, Title: fmt.Sprintf("标题%d", i+1), Synopsis: fmt.Sprintf("梗概%d", i+1)}
	}
	b, _ := json.Marshal(map[string]any{
		"title":      "测试之书",
		"characters": []map[string]string{{"name": "林岚", "role": "主角"}},
		"chapters":   chapters,
	})
	return string(b)
}

// ReviewJSON n 章评审结果，第 i 章意见为「意见i」
func ReviewJSON(n int, scores map[int]int) string {
	type chapter struct {
		Index    int    `json:"index"`
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}
	chapters := make([]chapter, n)
	for i := range chapters {
		s, ok := scores[i+1]
		if !ok {
			s = 5
		}
		chapters[i] = chapter{Index: i + 1, Score: s, Feedback: fmt.Sprintf("意见%d", i+1)}
	}
	b, _ := json.Marshal(map[string]any{"overall": 4, "chapters": chapters})
	return string(b)
}
