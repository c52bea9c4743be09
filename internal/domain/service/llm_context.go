package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyRole     llmCtxKey = "llm_role"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeyTaskID   llmCtxKey = "llm_task_id"
)

const unknown = "unknown"

// WithRole 记录当前调用的提示词角色（planner/writer/editor/reviewer）
func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, llmCtxKeyRole, role)
}

// WithProvider 记录当前调用的提供商
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithTaskID 记录当前调用所属任务
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return withValue(ctx, llmCtxKeyTaskID, taskID)
}

func RoleFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyRole, unknown)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyProvider, unknown)
}

func TaskIDFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyTaskID, "")
}

func withValue(ctx context.Context, key llmCtxKey, v string) context.Context {
	if ctx == nil {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOr(ctx context.Context, key llmCtxKey, def string) string {
	if ctx == nil {
		return def
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
