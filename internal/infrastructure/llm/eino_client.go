package llm

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "ai-novel-orchestrator/internal/domain/service"
)

// EinoClient 在单个提供商的 Eino ChatModel 上实现 Client
type EinoClient struct {
	factory  ChatModelFactory
	provider string
	model    string
}

// NewEinoClient 创建指定提供商的客户端
func NewEinoClient(factory ChatModelFactory, provider, modelName string) *EinoClient {
	return &EinoClient{factory: factory, provider: provider, model: modelName}
}

// Provider 返回提供商名称
func (c *EinoClient) Provider() string {
	return c.provider
}

// Complete 调用 ChatModel.Generate 并归类错误
func (c *EinoClient) Complete(ctx context.Context, prompt Prompt, params Params) (*Completion, error) {
	ctx = llmctx.WithProvider(ctx, c.provider)

	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		ce := Permanent(err)
		ce.Provider = c.provider
		return nil, ce
	}

	msgs := make([]*schema.Message, 0, 2)
	if s := strings.TrimSpace(prompt.System); s != "" {
		msgs = append(msgs, schema.SystemMessage(s))
	}
	msgs = append(msgs, schema.UserMessage(prompt.User))

	outMsg, err := chatModel.Generate(ctx, msgs, buildModelOptions(params)...)
	if err != nil {
		ce := Classify(err)
		ce.Provider = c.provider
		return nil, ce
	}
	if outMsg == nil {
		ce := Transient(errors.New("empty llm response"))
		ce.Provider = c.provider
		return nil, ce
	}

	out := &Completion{
		Text:     outMsg.Content,
		Provider: c.provider,
		Model:    c.model,
		Attempts: 1,
	}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		u := outMsg.ResponseMeta.Usage
		out.PromptTokens = u.PromptTokens
		out.CompletionTokens = u.CompletionTokens
		out.TokensUsed = int64(u.TotalTokens)
		if out.TokensUsed == 0 {
			out.TokensUsed = int64(u.PromptTokens + u.CompletionTokens)
		}
	}
	if out.TokensUsed == 0 {
		out.PromptTokens = EstimateTokens(prompt.System + prompt.User)
		out.CompletionTokens = EstimateTokens(outMsg.Content)
		out.TokensUsed = int64(out.PromptTokens + out.CompletionTokens)
	}
	return out, nil
}

func buildModelOptions(params Params) []model.Option {
	opts := make([]model.Option, 0, 2)
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(params.Temperature))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}
	return opts
}

// EstimateTokens 提供商未返回用量时的估算：按字符数计，下限为 1
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return n
}
