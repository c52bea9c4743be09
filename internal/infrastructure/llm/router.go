package llm

import (
	"context"
	"errors"

	"ai-novel-orchestrator/pkg/logger"
)

// NamedClient 带提供商名称的客户端
type NamedClient struct {
	Name   string
	Client Client
}

// Router 按 默认 -> 降级链 顺序调用提供商
//
// 仅在可重试错误时切换到下一个提供商；不可重试错误立即返回。
// 所有尝试计费的 token 累加到结果或错误上。
type Router struct {
	clients []NamedClient
}

// NewRouter 创建路由器，clients 为空时每次调用都返回 Permanent
func NewRouter(clients ...NamedClient) *Router {
	return &Router{clients: clients}
}

// Complete 实现 Client
func (r *Router) Complete(ctx context.Context, prompt Prompt, params Params) (*Completion, error) {
	if len(r.clients) == 0 {
		return nil, Permanent(errors.New("no llm provider configured"))
	}

	var billed int64
	var lastErr *CallError
	for i, nc := range r.clients {
		out, err := nc.Client.Complete(ctx, prompt, params)
		if err == nil {
			out.TokensUsed += billed
			if out.Provider == "" {
				out.Provider = nc.Name
			}
			return out, nil
		}

		ce := Classify(err)
		billed += ce.TokensUsed
		if ce.Provider == "" {
			ce.Provider = nc.Name
		}
		lastErr = ce
		if ce.Kind == KindPermanent || ctx.Err() != nil {
			break
		}
		if i+1 < len(r.clients) {
			logger.Warn(ctx, "llm provider failed, falling back",
				"provider", nc.Name,
				"next", r.clients[i+1].Name,
				"error", err.Error(),
			)
		}
	}

	out := *lastErr
	out.TokensUsed = billed
	return nil, &out
}
