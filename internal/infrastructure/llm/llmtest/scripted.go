// Package llmtest 提供测试用的可编排模型客户端
package llmtest

import (
	"context"
	"fmt"
	"sync"

	llmctx "ai-novel-orchestrator/internal/domain/service"
	"ai-novel-orchestrator/internal/infrastructure/llm"
)

// Step 一次调用的预设结果
type Step struct {
	Text   string
	Tokens int64
	Err    error
}

// Call 记录的一次调用，Role 取自调用上下文
type Call struct {
	Role   string
	Prompt llm.Prompt
	Params llm.Params
}

// ScriptedClient 按顺序返回预设结果；脚本耗尽后调用 Fallback
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []Step
	calls    []Call
	Fallback func(call Call) Step
}

// NewScriptedClient 创建脚本客户端
func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// Push 追加预设结果
func (c *ScriptedClient) Push(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Complete 实现 llm.Client
func (c *ScriptedClient) Complete(ctx context.Context, prompt llm.Prompt, params llm.Params) (*llm.Completion, error) {
	call := Call{Role: llmctx.RoleFromContext(ctx), Prompt: prompt, Params: params}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	fallback := c.Fallback
	var step Step
	switch {
	case len(c.steps) > 0:
		step = c.steps[0]
		c.steps = c.steps[1:]
		c.mu.Unlock()
	case fallback != nil:
		c.mu.Unlock()
		step = fallback(call)
	default:
		n := len(c.calls)
		c.mu.Unlock()
		return nil, llm.Permanent(fmt.Errorf("scripted client exhausted after %d calls", n))
	}

	if err := ctx.Err(); err != nil {
		return nil, llm.Transient(err)
	}
	if step.Err != nil {
		if ce, ok := step.Err.(*llm.CallError); ok {
			cp := *ce
			cp.TokensUsed = step.Tokens
			return nil, &cp
		}
		return nil, step.Err
	}
	return &llm.Completion{Text: step.Text, TokensUsed: step.Tokens, Provider: "scripted", Attempts: 1}, nil
}

// SetFallback 替换脚本耗尽后的兜底函数
func (c *ScriptedClient) SetFallback(f func(call Call) Step) {
	c.mu.Lock()
	c.Fallback = f
	c.mu.Unlock()
}

// Calls 返回调用记录副本
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}
