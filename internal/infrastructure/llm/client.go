// Package llm 提供与具体提供商无关的模型调用能力
package llm

import (
	"context"
)

// Prompt 一次调用的提示词
type Prompt struct {
	System string
	User   string
}

// Params 调用参数
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Completion 调用结果
//
// TokensUsed 为本次调用（含重试、降级的所有尝试）累计计费的 token 数。
type Completion struct {
	Text             string
	TokensUsed       int64
	PromptTokens     int
	CompletionTokens int
	Provider         string
	Model            string
	Attempts         int
}

// Client 模型调用能力，编排器与阶段引擎只依赖该接口
type Client interface {
	Complete(ctx context.Context, prompt Prompt, params Params) (*Completion, error)
}

// ClientFunc 函数适配器
type ClientFunc func(ctx context.Context, prompt Prompt, params Params) (*Completion, error)

// Complete 实现 Client
func (f ClientFunc) Complete(ctx context.Context, prompt Prompt, params Params) (*Completion, error) {
	return f(ctx, prompt, params)
}
