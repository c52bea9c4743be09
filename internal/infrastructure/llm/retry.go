package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ai-novel-orchestrator/internal/config"
	llmctx "ai-novel-orchestrator/internal/domain/service"
	"ai-novel-orchestrator/pkg/logger"
	"ai-novel-orchestrator/pkg/metrics"
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Multiplier  float64
	Jitter      float64
	CallTimeout time.Duration
}

// PolicyFromConfig 从配置构造重试策略
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.Base,
		Cap:         cfg.Cap,
		Multiplier:  cfg.Multiplier,
		Jitter:      cfg.Jitter,
		CallTimeout: cfg.CallTimeout,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.Base > 0 {
		b.InitialInterval = p.Base
	}
	if p.Cap > 0 {
		b.MaxInterval = p.Cap
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	if p.Jitter >= 0 && p.Jitter < 1 {
		b.RandomizationFactor = p.Jitter
	}
	return b
}

// RetryClient 为单次模型调用提供有界重试与指数退避
//
// 不可重试错误立即返回；可重试错误耗尽次数后重新归类为 Permanent。
// 每次尝试计费的 token 都会累加，成功时计入 Completion.TokensUsed，失败时计入 CallError.TokensUsed。
type RetryClient struct {
	next   Client
	policy RetryPolicy
}

// NewRetryClient 包装 next
func NewRetryClient(next Client, policy RetryPolicy) *RetryClient {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RetryClient{next: next, policy: policy}
}

// Complete 实现 Client
func (c *RetryClient) Complete(ctx context.Context, prompt Prompt, params Params) (*Completion, error) {
	var billed int64
	attempts := 0

	operation := func() (*Completion, error) {
		attempts++
		callCtx := ctx
		if c.policy.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.policy.CallTimeout)
			defer cancel()
		}

		out, err := c.next.Complete(callCtx, prompt, params)
		if err != nil {
			ce := Classify(err)
			billed += ce.TokensUsed
			if ce.Kind == KindPermanent {
				return nil, backoff.Permanent(ce)
			}
			return nil, ce
		}
		billed += out.TokensUsed
		return out, nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.LLMRetries.WithLabelValues(llmctx.RoleFromContext(ctx)).Inc()
		logger.Warn(ctx, "llm call failed, retrying",
			"attempt", attempts,
			"max_attempts", c.policy.MaxAttempts,
			"wait", wait.String(),
			"error", err.Error(),
		)
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.policy.newBackOff()),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	if err == nil {
		out.TokensUsed = billed
		out.Attempts = attempts
		return out, nil
	}

	var ce *CallError
	if !errors.As(err, &ce) {
		ce = Classify(err)
	}
	final := *ce
	final.Attempts = attempts
	final.TokensUsed = billed
	if final.Kind == KindTransient {
		final.Kind = KindPermanent
		final.Err = fmt.Errorf("retries exhausted after %d attempts: %w", attempts, ce.Err)
	}
	return nil, &final
}
