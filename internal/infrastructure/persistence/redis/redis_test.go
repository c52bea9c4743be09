package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/domain/entity"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func sampleTask(id string, created time.Time) *entity.Task {
	return entity.NewTask(id, "alice", entity.Request{Theme: "雨夜", Genre: "mystery", Style: "zhihu", WordCount: 2000, ChapterCount: 2}, created)
}

func TestTaskStoreRoundTripAndActiveSet(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewTaskStore(client, time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b := sampleTask("b", base.Add(time.Minute))
	a := sampleTask("a", base)
	done := sampleTask("c", base)
	_ = done.Fail("PERMANENT", "boom", base)
	for _, task := range []*entity.Task{b, a, done} {
		if err := store.Save(ctx, task); err != nil {
			t.Fatalf("Save err=%v", err)
		}
	}

	got, err := store.Load(ctx, "a")
	if err != nil || got.Request.Theme != "雨夜" || !got.CreatedAt.Equal(base) {
		t.Fatalf("Load=%+v err=%v", got, err)
	}
	if ttl := mr.TTL(taskKey("a")); ttl != time.Hour {
		t.Fatalf("ttl=%s, want 1h", ttl)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive err=%v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "b" {
		t.Fatalf("active=%v", active)
	}

	_ = a.Fail("CANCELLED", "stop", base)
	_ = store.Save(ctx, a)
	if ok, _ := mr.SIsMember(activeSetKey, "a"); ok {
		t.Fatalf("terminal task still in active set")
	}
}

func TestTaskStoreExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewTaskStore(client, time.Minute)
	ctx := context.Background()

	_ = store.Save(ctx, sampleTask("x", time.Now()))
	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, "x"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("Load err=%v, want NotFound", err)
	}
	active, err := store.ListActive(ctx)
	if err != nil || len(active) != 0 {
		t.Fatalf("ListActive=%v err=%v", active, err)
	}
	if ok, _ := mr.SIsMember(activeSetKey, "x"); ok {
		t.Fatalf("expired id not pruned from active set")
	}
}

func TestBudgetRequestWindow(t *testing.T) {
	client, _ := newTestClient(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(client, quota.Limits{RequestsPerHour: 2}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Admit(ctx, "alice", 10); err != nil {
			t.Fatalf("Admit #%d err=%v", i+1, err)
		}
	}
	err := b.Admit(ctx, "alice", 10)
	if !apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
		t.Fatalf("Admit err=%v, want QuotaExceeded", err)
	}
	app := apperrors.AsAppError(err)
	rl, ok := app.Err.(quota.RateLimitExceededError)
	if !ok || rl.RetryAfter != time.Hour {
		t.Fatalf("cause=%#v", app.Err)
	}
	if err := b.Admit(ctx, "bob", 10); err != nil {
		t.Fatalf("other identity err=%v", err)
	}

	now = now.Add(time.Hour + time.Second)
	if err := b.Admit(ctx, "alice", 10); err != nil {
		t.Fatalf("Admit after window err=%v", err)
	}
}

func TestBudgetDailyTokensAndReconcile(t *testing.T) {
	client, mr := newTestClient(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(client, quota.Limits{DailyTokens: 100}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := b.Admit(ctx, "alice", 80); err != nil {
		t.Fatalf("Admit err=%v", err)
	}
	if err := b.Admit(ctx, "alice", 30); !apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
		t.Fatalf("Admit err=%v, want QuotaExceeded", err)
	}

	key := tokensKey(now, "alice")
	if key != "tokens:2026-01-01:alice" {
		t.Fatalf("key=%s", key)
	}
	if ttl := mr.TTL(key); ttl != 7*24*time.Hour {
		t.Fatalf("ttl=%s, want 7d", ttl)
	}

	// 实际只用了 50，退还 30
	if err := b.Reconcile(ctx, "alice", 80, 50); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}
	if err := b.Admit(ctx, "alice", 30); err != nil {
		t.Fatalf("Admit after refund err=%v", err)
	}
	if err := b.Reconcile(ctx, "alice", 1000, 0); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}
	if _, used, _ := b.Usage(ctx, "alice"); used != 0 {
		t.Fatalf("used=%d, want clamped at 0", used)
	}

	now = now.Add(24 * time.Hour)
	if err := b.Admit(ctx, "alice", 100); err != nil {
		t.Fatalf("next day err=%v", err)
	}
}

func TestBudgetConcurrentAdmitsNeverOvershoot(t *testing.T) {
	client, _ := newTestClient(t)
	b := NewBudget(client, quota.Limits{DailyTokens: 100})
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Admit(ctx, "alice", 10) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	if admitted.Load() != 10 {
		t.Fatalf("admitted=%d, want 10", admitted.Load())
	}
}

func TestExportCacheRendersOnce(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewExportCache(client, time.Hour)
	ctx := context.Background()

	var renders atomic.Int32
	render := func() ([]byte, error) {
		renders.Add(1)
		return []byte("# 书名"), nil
	}
	key := ExportKey("t1", "markdown")
	for i := 0; i < 3; i++ {
		out, err := cache.GetOrRender(ctx, key, render)
		if err != nil || string(out) != "# 书名" {
			t.Fatalf("GetOrRender=%q err=%v", out, err)
		}
	}
	if renders.Load() != 1 {
		t.Fatalf("renders=%d, want 1", renders.Load())
	}
	if got, _ := mr.Get(key); got != "# 书名" {
		t.Fatalf("cached=%q", got)
	}
}
