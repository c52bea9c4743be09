package quota

import (
	"context"
	"sync"
)

// Ledger 单个任务的 Token 账本
// 前几次调用先消耗 Admit 时的预占额度，超出部分即时计费，任务结束时退还剩余额度
type Ledger struct {
	mu        sync.Mutex
	budget    Budget
	identity  string
	remaining int64
	spent     int64
}

// NewLedger 基于已预占的额度创建账本
func NewLedger(budget Budget, identity string, reserved int64) *Ledger {
	if reserved < 0 {
		reserved = 0
	}
	return &Ledger{
		budget:    budget,
		identity:  identity,
		remaining: reserved,
	}
}

// Charge 记录一次调用消耗的 Token
func (l *Ledger) Charge(ctx context.Context, tokens int64) error {
	if l == nil || tokens <= 0 {
		return nil
	}
	l.mu.Lock()
	l.spent += tokens
	overflow := tokens - l.remaining
	if overflow <= 0 {
		l.remaining -= tokens
		l.mu.Unlock()
		return nil
	}
	l.remaining = 0
	l.mu.Unlock()
	return l.budget.Reconcile(ctx, l.identity, 0, overflow)
}

// Close 退还未用完的预占额度，可重复调用
func (l *Ledger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	refund := l.remaining
	l.remaining = 0
	l.mu.Unlock()
	if refund == 0 {
		return nil
	}
	return l.budget.Reconcile(ctx, l.identity, refund, 0)
}

// Spent 已累计消耗的 Token
func (l *Ledger) Spent() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}
