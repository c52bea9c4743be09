// Package quota 提供按身份的请求频率与 Token 配额
package quota

import (
	"context"
	"fmt"
	"time"

	"ai-novel-orchestrator/internal/config"
	apperrors "ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/metrics"
)

// RequestWindow 请求计数的滚动窗口
const RequestWindow = time.Hour

// Budget 配额服务
type Budget interface {
	// Admit 原子地检查并占用一次请求与 estimate 个 Token
	Admit(ctx context.Context, identity string, estimate int64) error
	// Reconcile 按 actual-reserved 调整当日用量，结果不低于 0
	Reconcile(ctx context.Context, identity string, reserved, actual int64) error
}

// Limits 配额上限，0 表示不限
type Limits struct {
	RequestsPerHour int
	DailyTokens     int64
}

// LimitsFromConfig 从配置构造上限
func LimitsFromConfig(cfg config.QuotaConfig) Limits {
	return Limits{
		RequestsPerHour: cfg.RequestsPerHour,
		DailyTokens:     cfg.DailyTokens,
	}
}

// TokenQuotaExceededError 表示身份当日 Token 配额已耗尽
type TokenQuotaExceededError struct {
	Identity string
	Max      int64
	Used     int64
	Estimate int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: identity=%s used=%d estimate=%d max=%d", e.Identity, e.Used, e.Estimate, e.Max)
}

// RateLimitExceededError 表示滚动窗口内请求数已达上限
type RateLimitExceededError struct {
	Identity   string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: identity=%s limit=%d window=%s retry_after=%s", e.Identity, e.Limit, e.Window, e.RetryAfter)
}

// QuotaError 包装为统一的 QuotaExceeded 应用错误并记录指标
func QuotaError(err error) error {
	kind := "tokens"
	if _, ok := err.(RateLimitExceededError); ok {
		kind = "requests"
	}
	metrics.QuotaRejected.WithLabelValues(kind).Inc()
	return apperrors.ErrQuotaExceeded.WithDetail(err.Error()).WithError(err)
}

// Estimate 估算一次任务的 Token 占用，不超过单次请求上限
func Estimate(wordCount int, factor float64, ceiling int64) int64 {
	if factor <= 0 {
		factor = 1
	}
	est := int64(float64(wordCount) * factor)
	if est < 1 {
		est = 1
	}
	if ceiling > 0 && est > ceiling {
		est = ceiling
	}
	return est
}

// DayKey 当日配额的日期键，按 UTC 划分
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
