package eino

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"

	llmctx "ai-novel-orchestrator/internal/domain/service"
	"ai-novel-orchestrator/pkg/metrics"
)

func TestChatModelHandlerRecordsSuccess(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := llmctx.WithProvider(llmctx.WithRole(context.Background(), "writer"), "obs-test")

	calls := metrics.LLMCallTotal.WithLabelValues("writer", "obs-test", "m1", "success")
	prompt := metrics.LLMTokensUsed.WithLabelValues("writer", "obs-test", "m1", "prompt")
	beforeCalls, beforePrompt := testutil.ToFloat64(calls), testutil.ToFloat64(prompt)

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m1"}})
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Config:     &model.Config{Model: "m1"},
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42},
	})

	if got := testutil.ToFloat64(calls) - beforeCalls; got != 1 {
		t.Fatalf("success calls delta=%v, want 1", got)
	}
	if got := testutil.ToFloat64(prompt) - beforePrompt; got != 12 {
		t.Fatalf("prompt tokens delta=%v, want 12", got)
	}
}

func TestChatModelHandlerRecordsError(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := llmctx.WithProvider(llmctx.WithRole(context.Background(), "reviewer"), "obs-test")

	calls := metrics.LLMCallTotal.WithLabelValues("reviewer", "obs-test", "m2", "error")
	before := testutil.ToFloat64(calls)

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m2"}})
	h.OnError(ctx, nil, errors.New("rate limited"))

	if got := testutil.ToFloat64(calls) - before; got != 1 {
		t.Fatalf("error calls delta=%v, want 1", got)
	}
}
