package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryBudget 进程内配额实现
type MemoryBudget struct {
	mu       sync.Mutex
	limits   Limits
	now      func() time.Time
	requests map[string][]time.Time
	tokens   map[string]int64 // key: day + identity
}

// NewMemoryBudget 创建进程内配额
func NewMemoryBudget(limits Limits) *MemoryBudget {
	return &MemoryBudget{
		limits:   limits,
		now:      time.Now,
		requests: make(map[string][]time.Time),
		tokens:   make(map[string]int64),
	}
}

// WithClock 替换时钟
func (b *MemoryBudget) WithClock(now func() time.Time) *MemoryBudget {
	b.now = now
	return b
}

// Admit 实现 Budget
func (b *MemoryBudget) Admit(_ context.Context, identity string, estimate int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	reqs := pruneBefore(b.requests[identity], now.Add(-RequestWindow))
	b.requests[identity] = reqs

	if b.limits.RequestsPerHour > 0 && len(reqs) >= b.limits.RequestsPerHour {
		return QuotaError(RateLimitExceededError{
			Identity:   identity,
			Limit:      b.limits.RequestsPerHour,
			Window:     RequestWindow,
			RetryAfter: reqs[0].Add(RequestWindow).Sub(now),
		})
	}

	key := tokenKey(now, identity)
	used := b.tokens[key]
	if b.limits.DailyTokens > 0 && used+estimate > b.limits.DailyTokens {
		return QuotaError(TokenQuotaExceededError{
			Identity: identity,
			Max:      b.limits.DailyTokens,
			Used:     used,
			Estimate: estimate,
		})
	}

	b.requests[identity] = append(reqs, now)
	b.tokens[key] = used + estimate
	return nil
}

// Reconcile 实现 Budget
func (b *MemoryBudget) Reconcile(_ context.Context, identity string, reserved, actual int64) error {
	delta := actual - reserved
	if delta == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := tokenKey(b.now(), identity)
	next := b.tokens[key] + delta
	if next < 0 {
		next = 0
	}
	b.tokens[key] = next
	return nil
}

// Usage 返回当前窗口请求数与当日 Token 用量
func (b *MemoryBudget) Usage(identity string) (requests int, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	return len(pruneBefore(b.requests[identity], now.Add(-RequestWindow))), b.tokens[tokenKey(now, identity)]
}

func tokenKey(now time.Time, identity string) string {
	return DayKey(now) + ":" + identity
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time(nil), ts[i:]...)
}
