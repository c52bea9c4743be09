package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"ai-novel-orchestrator/internal/application/quota"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

// tokenKeyTTL 日 Token 计数的保留时长
const tokenKeyTTL = 7 * 24 * time.Hour

// admitScript 滑动窗口请求计数与当日 Token 累计在同一脚本内检查并占用
// 返回 {结果, 数值, 重试等待毫秒}，结果 0 通过，1 请求超限，2 Token 超限
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local maxTokens = tonumber(ARGV[4])
local estimate = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if limit > 0 and count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = 0
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {1, count, retry}
end

local used = tonumber(redis.call('GET', KEYS[2]) or '0')
if maxTokens > 0 and used + estimate > maxTokens then
  return {2, used, 0}
end

redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('PEXPIRE', KEYS[1], window)
redis.call('INCRBY', KEYS[2], estimate)
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[7]))
return {0, used + estimate, 0}
`)

// reconcileScript 按差值调整当日用量，结果不低于 0
var reconcileScript = redis.NewScript(`
local next = redis.call('INCRBY', KEYS[1], tonumber(ARGV[1]))
if next < 0 then
  redis.call('SET', KEYS[1], 0)
  next = 0
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return next
`)

// Budget 多实例共享的配额实现
type Budget struct {
	client *Client
	limits quota.Limits
	now    func() time.Time
}

// NewBudget 创建 Redis 配额
func NewBudget(client *Client, limits quota.Limits) *Budget {
	return &Budget{client: client, limits: limits, now: time.Now}
}

// WithClock 替换时钟
func (b *Budget) WithClock(now func() time.Time) *Budget {
	b.now = now
	return b
}

func requestKey(identity string) string {
	return "quota:requests:" + identity
}

func tokensKey(now time.Time, identity string) string {
	return fmt.Sprintf("tokens:%s:%s", quota.DayKey(now), identity)
}

// Admit 实现 quota.Budget
func (b *Budget) Admit(ctx context.Context, identity string, estimate int64) error {
	ctx, span := tracer.Start(ctx, "quota.Admit")
	span.SetAttributes(
		attribute.String("quota.identity", identity),
		attribute.Int64("quota.estimate", estimate),
	)
	defer span.End()

	now := b.now()
	nowMs := now.UnixMilli()
	res, err := admitScript.Run(ctx, b.client.rdb,
		[]string{requestKey(identity), tokensKey(now, identity)},
		nowMs,
		quota.RequestWindow.Milliseconds(),
		b.limits.RequestsPerHour,
		b.limits.DailyTokens,
		estimate,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
		int64(tokenKeyTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreError, "quota admit")
	}

	switch res[0] {
	case 1:
		span.SetAttributes(attribute.Bool("quota.allowed", false))
		return quota.QuotaError(quota.RateLimitExceededError{
			Identity:   identity,
			Limit:      b.limits.RequestsPerHour,
			Window:     quota.RequestWindow,
			RetryAfter: time.Duration(res[2]) * time.Millisecond,
		})
	case 2:
		span.SetAttributes(attribute.Bool("quota.allowed", false))
		return quota.QuotaError(quota.TokenQuotaExceededError{
			Identity: identity,
			Max:      b.limits.DailyTokens,
			Used:     res[1],
			Estimate: estimate,
		})
	}
	span.SetAttributes(attribute.Bool("quota.allowed", true), attribute.Int64("quota.used", res[1]))
	return nil
}

// Reconcile 实现 quota.Budget
func (b *Budget) Reconcile(ctx context.Context, identity string, reserved, actual int64) error {
	delta := actual - reserved
	if delta == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "quota.Reconcile")
	span.SetAttributes(attribute.String("quota.identity", identity), attribute.Int64("quota.delta", delta))
	defer span.End()

	err := reconcileScript.Run(ctx, b.client.rdb,
		[]string{tokensKey(b.now(), identity)},
		delta,
		int64(tokenKeyTTL.Seconds()),
	).Err()
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreError, "quota reconcile")
	}
	return nil
}

// Usage 返回当前窗口请求数与当日 Token 用量
func (b *Budget) Usage(ctx context.Context, identity string) (int64, int64, error) {
	now := b.now()
	pipe := b.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, requestKey(identity), "-inf", fmt.Sprintf("%d", now.Add(-quota.RequestWindow).UnixMilli()))
	countCmd := pipe.ZCard(ctx, requestKey(identity))
	tokensCmd := pipe.Get(ctx, tokensKey(now, identity))
	if _, err := pipe.Exec(ctx); err != nil && !IsNil(err) {
		return 0, 0, err
	}
	tokens, _ := tokensCmd.Int64()
	return countCmd.Val(), tokens, nil
}
