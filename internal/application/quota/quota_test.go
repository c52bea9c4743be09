package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "ai-novel-orchestrator/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestMemoryBudgetRateLimit(t *testing.T) {
	clock := newClock()
	b := NewMemoryBudget(Limits{RequestsPerHour: 2}).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Admit(ctx, "u1", 10); err != nil {
			t.Fatalf("Admit #%d err=%v", i, err)
		}
	}
	err := b.Admit(ctx, "u1", 10)
	if !apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
		t.Fatalf("Admit err=%v, want QuotaExceeded", err)
	}
	var rl RateLimitExceededError
	if !errors.As(err, &rl) || rl.Limit != 2 {
		t.Fatalf("err=%v, want RateLimitExceededError", err)
	}

	if err := b.Admit(ctx, "u2", 10); err != nil {
		t.Fatalf("other identity err=%v", err)
	}

	clock.Advance(RequestWindow + time.Second)
	if err := b.Admit(ctx, "u1", 10); err != nil {
		t.Fatalf("Admit after window err=%v", err)
	}
}

func TestMemoryBudgetDailyTokens(t *testing.T) {
	clock := newClock()
	b := NewMemoryBudget(Limits{DailyTokens: 100}).WithClock(clock.Now)
	ctx := context.Background()

	if err := b.Admit(ctx, "u1", 80); err != nil {
		t.Fatalf("Admit err=%v", err)
	}
	err := b.Admit(ctx, "u1", 30)
	var tq TokenQuotaExceededError
	if !errors.As(err, &tq) || tq.Used != 80 {
		t.Fatalf("err=%v, want TokenQuotaExceededError used=80", err)
	}
	// 拒绝不应占用请求数
	if reqs, _ := b.Usage("u1"); reqs != 1 {
		t.Fatalf("requests=%d, want 1", reqs)
	}

	clock.Advance(24 * time.Hour)
	if err := b.Admit(ctx, "u1", 90); err != nil {
		t.Fatalf("Admit next day err=%v", err)
	}
}

func TestMemoryBudgetReconcileClampsAtZero(t *testing.T) {
	b := NewMemoryBudget(Limits{DailyTokens: 100}).WithClock(newClock().Now)
	ctx := context.Background()
	_ = b.Admit(ctx, "u1", 40)

	if err := b.Reconcile(ctx, "u1", 40, 55); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}
	if _, tokens := b.Usage("u1"); tokens != 55 {
		t.Fatalf("tokens=%d, want 55", tokens)
	}
	_ = b.Reconcile(ctx, "u1", 500, 0)
	if _, tokens := b.Usage("u1"); tokens != 0 {
		t.Fatalf("tokens=%d, want 0", tokens)
	}
}

func TestMemoryBudgetConcurrentAdmitsNeverOvershoot(t *testing.T) {
	b := NewMemoryBudget(Limits{RequestsPerHour: 1000, DailyTokens: 1000}).WithClock(newClock().Now)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Admit(ctx, "u1", 100); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("admitted=%d, want 10", admitted)
	}
	if _, tokens := b.Usage("u1"); tokens != 1000 {
		t.Fatalf("tokens=%d, want 1000", tokens)
	}
}

func TestLedgerConsumesReservationThenCharges(t *testing.T) {
	b := NewMemoryBudget(Limits{DailyTokens: 10000}).WithClock(newClock().Now)
	ctx := context.Background()
	if err := b.Admit(ctx, "u1", 100); err != nil {
		t.Fatalf("Admit err=%v", err)
	}

	l := NewLedger(b, "u1", 100)
	_ = l.Charge(ctx, 60)
	if _, tokens := b.Usage("u1"); tokens != 100 {
		t.Fatalf("tokens=%d, want 100 while inside reservation", tokens)
	}
	_ = l.Charge(ctx, 70)
	if _, tokens := b.Usage("u1"); tokens != 130 {
		t.Fatalf("tokens=%d, want 130 after overflow", tokens)
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if _, tokens := b.Usage("u1"); tokens != 130 {
		t.Fatalf("tokens=%d, want 130 after close", tokens)
	}
	if l.Spent() != 130 {
		t.Fatalf("Spent=%d, want 130", l.Spent())
	}
}

func TestLedgerRefundsUnused(t *testing.T) {
	b := NewMemoryBudget(Limits{DailyTokens: 10000}).WithClock(newClock().Now)
	ctx := context.Background()
	_ = b.Admit(ctx, "u1", 500)

	l := NewLedger(b, "u1", 500)
	_ = l.Charge(ctx, 120)
	_ = l.Close(ctx)
	_ = l.Close(ctx)
	if _, tokens := b.Usage("u1"); tokens != 120 {
		t.Fatalf("tokens=%d, want 120", tokens)
	}
}

func TestEstimate(t *testing.T) {
	if got := Estimate(1000, 1.5, 50000); got != 1500 {
		t.Fatalf("Estimate=%d, want 1500", got)
	}
	if got := Estimate(100000, 1.5, 50000); got != 50000 {
		t.Fatalf("Estimate=%d, want ceiling 50000", got)
	}
	if got := Estimate(0, 0, 0); got != 1 {
		t.Fatalf("Estimate=%d, want 1", got)
	}
}
