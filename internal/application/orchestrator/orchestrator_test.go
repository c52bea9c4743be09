package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-novel-orchestrator/internal/application/admission"
	"ai-novel-orchestrator/internal/application/generation"
	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/infrastructure/llm/llmtest"
	"ai-novel-orchestrator/internal/infrastructure/persistence/memory"
	"ai-novel-orchestrator/internal/workflow/prompt"
	apperrors "ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Generation: config.GenerationConfig{
			DefaultWordCount:    12000,
			DefaultChapterCount: 12,
			MaxWordCount:        200000,
			MaxChapterCount:     50,
			MaxThemeRunes:       500,
			OutlineMaxTokens:    2000,
			ChapterMaxTokens:    4000,
			ReviewMaxTokens:     2000,
			MaxParseAttempts:    2,
			ContextTailRunes:    100,
			ContextDigestCount:  3,
			ContextDigestRunes:  50,
			ReviewThreshold:     0.7,
			MaxRevisions:        3,
			PolishEnabled:       true,
			ReviewEnabled:       true,
			TokensPerWordFactor: 1.5,
		},
		Quota:     config.QuotaConfig{RequestsPerHour: 100, DailyTokens: 10000000, MaxTokensPerRequest: 50000},
		Admission: config.AdmissionConfig{MaxConcurrent: 2, Backlog: 2, Mode: "enqueue"},
	}
}

// gate 阻塞指定角色的调用直到放行
type gate struct {
	role    string
	nth     int
	mu      sync.Mutex
	seen    int
	reached chan struct{}
	release chan struct{}
}

func newGate(role string, nth int) *gate {
	return &gate{role: role, nth: nth, reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(c llmtest.Call) (llmtest.Step, bool) {
	if c.Role != g.role {
		return llmtest.Step{}, false
	}
	g.mu.Lock()
	g.seen++
	hit := g.seen == g.nth
	g.mu.Unlock()
	if hit {
		close(g.reached)
		<-g.release
	}
	return llmtest.Step{}, false
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.reached:
	case <-time.After(5 * time.Second):
		t.Fatalf("gate %s#%d never reached", g.role, g.nth)
	}
}

type events struct {
	mu   sync.Mutex
	list []entity.TaskEvent
}

func (e *events) Publish(_ context.Context, ev entity.TaskEvent) error {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
	return nil
}

func (e *events) statuses(taskID string) []entity.TaskStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []entity.TaskStatus
	for _, ev := range e.list {
		if ev.TaskID == taskID && ev.Type == entity.TaskEventStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

type harness struct {
	orch   *Orchestrator
	store  *memory.TaskStore
	budget *quota.MemoryBudget
	model  *llmtest.NovelModel
	client *llmtest.ScriptedClient
	events *events
}

func newHarness(t *testing.T, cfg *config.Config, chapters int) *harness {
	t.Helper()
	store := memory.NewTaskStore(0)
	model := llmtest.NewNovelModel(chapters, 10)
	client := model.Client()
	budget := quota.NewMemoryBudget(quota.LimitsFromConfig(cfg.Quota))
	catalog := prompt.DefaultCatalog()
	engine := generation.NewEngine(client, prompt.NewRegistry(), catalog, store, cfg)
	ev := &events{}
	orch := New(cfg, store, budget, admission.NewController(cfg.Admission), engine, catalog, ev)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return &harness{orch: orch, store: store, budget: budget, model: model, client: client, events: ev}
}

func request(chapters int) entity.Request {
	return entity.Request{Theme: "重返故乡的程序员", Genre: "workplace", Style: "zhihu", WordCount: chapters * 1000, ChapterCount: chapters}
}

func waitStatus(t *testing.T, o *Orchestrator, id string, want entity.TaskStatus) entity.StatusView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := o.GetStatus(context.Background(), id)
		if err == nil && v.Status == want {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s status=%s err=%v, want %s", id, v.Status, err, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitRejectsInvalidRequestWithoutStoring(t *testing.T) {
	h := newHarness(t, testConfig(), 2)
	ctx := context.Background()

	cases := []entity.Request{
		{Theme: "   ", WordCount: 1000, ChapterCount: 2},
		{Theme: "x", WordCount: -1, ChapterCount: 2},
		{Theme: "x", WordCount: 1000, ChapterCount: 51},
		{Theme: "x", Genre: "western", WordCount: 1000, ChapterCount: 2},
		{Theme: "x", Style: "gothic", WordCount: 1000, ChapterCount: 2},
	}
	for _, req := range cases {
		id, err := h.orch.Submit(ctx, "u1", req)
		if !apperrors.IsCode(err, apperrors.CodeInvalidRequest) || id != "" {
			t.Fatalf("Submit(%+v) id=%q err=%v, want InvalidRequest", req, id, err)
		}
	}
	if h.store.Len() != 0 {
		t.Fatalf("store has %d tasks, want 0", h.store.Len())
	}
	if reqs, _ := h.budget.Usage("u1"); reqs != 0 {
		t.Fatalf("invalid requests consumed quota")
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	h := newHarness(t, testConfig(), 12)
	id, err := h.orch.Submit(context.Background(), "u1", entity.Request{Theme: "雨夜"})
	if err != nil {
		t.Fatalf("Submit err=%v", err)
	}
	task, _ := h.store.Load(context.Background(), id)
	if task.Request.Genre != prompt.GenreAuto || task.Request.Style != DefaultStyle || task.Request.ChapterCount != 12 {
		t.Fatalf("request=%+v", task.Request)
	}
	waitStatus(t, h.orch, id, entity.TaskStatusCompleted)
}

func TestTwelveChapterScenario(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.MaxConcurrent = 1
	h := newHarness(t, cfg, 12)
	ctx := context.Background()

	// 第一个任务占住唯一槽位，第二个任务在队列中保持 pending/0
	blocker := newGate("writer", 3)
	h.model.Override = blocker.hook

	first, err := h.orch.Submit(ctx, "u1", request(12))
	if err != nil {
		t.Fatalf("Submit first err=%v", err)
	}
	blocker.wait(t)

	second, err := h.orch.Submit(ctx, "u1", request(12))
	if err != nil {
		t.Fatalf("Submit second err=%v", err)
	}
	v, err := h.orch.GetStatus(ctx, second)
	if err != nil || v.Status != entity.TaskStatusPending || v.Progress != 0 {
		t.Fatalf("second status=%+v err=%v, want pending/0", v, err)
	}

	v, _ = h.orch.GetStatus(ctx, first)
	if v.Status != entity.TaskStatusWriting || v.Progress <= 0 {
		t.Fatalf("first status=%s progress=%d, want writing > 0", v.Status, v.Progress)
	}

	close(blocker.release)
	for _, id := range []string{first, second} {
		v := waitStatus(t, h.orch, id, entity.TaskStatusCompleted)
		if v.Progress != 100 || v.ChaptersDone != 12 {
			t.Fatalf("final %+v", v)
		}
		res, err := h.orch.GetResult(ctx, id)
		if err != nil || len(res.Chapters) != 12 {
			t.Fatalf("GetResult err=%v", err)
		}
		want := []entity.TaskStatus{entity.TaskStatusPending, entity.TaskStatusOutlining, entity.TaskStatusWriting, entity.TaskStatusPolishing, entity.TaskStatusCompleted}
		got := h.events.statuses(id)
		if len(got) != len(want) {
			t.Fatalf("status events=%v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("status events=%v, want %v", got, want)
			}
		}
	}

	// 幂等
	a, _ := h.orch.GetStatus(ctx, first)
	b, _ := h.orch.GetStatus(ctx, first)
	if a.Status != b.Status || a.Progress != b.Progress || a.TotalTokens != b.TotalTokens || !a.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatalf("GetStatus not idempotent: %+v vs %+v", a, b)
	}
}

func TestSubmitQuotaExceededReleasesSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Quota.RequestsPerHour = 1
	cfg.Admission.MaxConcurrent = 1
	cfg.Admission.Mode = "reject"
	h := newHarness(t, cfg, 2)
	ctx := context.Background()

	id, err := h.orch.Submit(ctx, "u1", request(2))
	if err != nil {
		t.Fatalf("Submit err=%v", err)
	}
	waitStatus(t, h.orch, id, entity.TaskStatusCompleted)
	waitIdle(t, h.orch)

	if _, err := h.orch.Submit(ctx, "u1", request(2)); !apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
		t.Fatalf("Submit err=%v, want QuotaExceeded", err)
	}
	// 配额拒绝后槽位已归还，其他身份仍可提交
	if _, err := h.orch.Submit(ctx, "u2", request(2)); err != nil {
		t.Fatalf("Submit other identity err=%v", err)
	}
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := o.Stats(context.Background())
		if s.Running == 0 && s.Queued == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("orchestrator never idle: %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitOverloaded(t *testing.T) {
	cfg := testConfig()
	cfg.Admission = config.AdmissionConfig{MaxConcurrent: 1, Backlog: 0, Mode: "enqueue"}
	h := newHarness(t, cfg, 2)
	g := newGate("planner", 1)
	h.model.Override = g.hook
	ctx := context.Background()

	if _, err := h.orch.Submit(ctx, "u1", request(2)); err != nil {
		t.Fatalf("Submit err=%v", err)
	}
	g.wait(t)
	if _, err := h.orch.Submit(ctx, "u1", request(2)); !apperrors.IsCode(err, apperrors.CodeOverloaded) {
		t.Fatalf("Submit err=%v, want Overloaded", err)
	}
	close(g.release)
}

func TestGetResultNotReadyAndNotFound(t *testing.T) {
	h := newHarness(t, testConfig(), 2)
	g := newGate("planner", 1)
	h.model.Override = g.hook
	ctx := context.Background()

	id, _ := h.orch.Submit(ctx, "u1", request(2))
	g.wait(t)
	if _, err := h.orch.GetResult(ctx, id); !apperrors.IsCode(err, apperrors.CodeNotReady) {
		t.Fatalf("GetResult err=%v, want NotReady", err)
	}
	close(g.release)

	if _, err := h.orch.GetStatus(ctx, "missing"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("GetStatus err=%v, want NotFound", err)
	}
	if _, err := h.orch.GetResult(ctx, "missing"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("GetResult err=%v, want NotFound", err)
	}
}

func TestCancelRunningTask(t *testing.T) {
	h := newHarness(t, testConfig(), 4)
	g := newGate("writer", 2)
	h.model.Override = g.hook
	ctx := context.Background()

	id, _ := h.orch.Submit(ctx, "u1", request(4))
	g.wait(t)
	if err := h.orch.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	close(g.release)

	v := waitStatus(t, h.orch, id, entity.TaskStatusFailed)
	if v.Error == nil || v.Error.Code != generation.FailureCancelled {
		t.Fatalf("error=%+v, want CANCELLED", v.Error)
	}
	if v.ChaptersDone != 2 {
		t.Fatalf("chapters=%d, want in-flight chapter kept", v.ChaptersDone)
	}
	if err := h.orch.Cancel(ctx, id); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("second Cancel err=%v, want Conflict", err)
	}
	if _, err := h.orch.GetResult(ctx, id); !apperrors.IsCode(err, apperrors.CodeNotReady) {
		t.Fatalf("GetResult err=%v, want NotReady", err)
	}
}

func TestCancelQueuedTaskFailsAtOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.MaxConcurrent = 1
	h := newHarness(t, cfg, 2)
	g := newGate("planner", 1)
	h.model.Override = g.hook
	ctx := context.Background()

	running, _ := h.orch.Submit(ctx, "u1", request(2))
	g.wait(t)
	queued, err := h.orch.Submit(ctx, "u1", request(2))
	if err != nil {
		t.Fatalf("Submit queued err=%v", err)
	}

	if err := h.orch.Cancel(ctx, queued); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	v, _ := h.orch.GetStatus(ctx, queued)
	if v.Status != entity.TaskStatusFailed || v.Error.Code != generation.FailureCancelled {
		t.Fatalf("queued status=%+v, want failed CANCELLED immediately", v)
	}

	close(g.release)
	waitStatus(t, h.orch, running, entity.TaskStatusCompleted)
}

func TestRecoverResumesStoredTask(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	ctx := context.Background()

	now := time.Now()
	task := entity.NewTask("recovered-1", "u1", request(3), now)
	_ = task.TransitionTo(entity.TaskStatusOutlining, "", now)
	outline := &entity.Outline{Title: "旧稿", Chapters: []entity.ChapterSpec{
		{Index: 1, Title: "一", Synopsis: "a"}, {Index: 2, Title: "二", Synopsis: "b"}, {Index: 3, Title: "三", Synopsis: "c"},
	}}
	_ = task.SetOutline(outline, now)
	_ = task.TransitionTo(entity.TaskStatusWriting, "", now)
	_ = task.AppendChapter(entity.Chapter{Index: 1, Title: "一", Content: "旧的第一章", WordCount: 5}, now)
	_ = h.store.Save(ctx, task)

	done := entity.NewTask("done-1", "u1", request(3), now)
	_ = done.Fail("PERMANENT", "boom", now)
	_ = h.store.Save(ctx, done)

	n, err := h.orch.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover n=%d err=%v, want 1", n, err)
	}
	res := waitStatus(t, h.orch, task.ID, entity.TaskStatusCompleted)
	if res.Title != "旧稿" {
		t.Fatalf("outline regenerated: title=%q", res.Title)
	}
	for _, c := range h.client.Calls() {
		if c.Role == "planner" {
			t.Fatalf("recover re-ran the planner")
		}
	}
	if h.model.Drafts() != 2 {
		t.Fatalf("drafts=%d, want 2", h.model.Drafts())
	}
}

func TestRecoverQueuesTasksBeyondAdmissionCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Admission = config.AdmissionConfig{MaxConcurrent: 1, Backlog: 0, Mode: "reject"}
	h := newHarness(t, cfg, 3)
	ctx := context.Background()

	ids := []string{"stored-0", "stored-1", "stored-2"}
	for _, id := range ids {
		_ = h.store.Save(ctx, entity.NewTask(id, "u1", request(3), time.Now()))
	}

	n, err := h.orch.Recover(ctx)
	if err != nil || n != len(ids) {
		t.Fatalf("Recover n=%d err=%v, want %d", n, err, len(ids))
	}
	for _, id := range ids {
		v := waitStatus(t, h.orch, id, entity.TaskStatusCompleted)
		if v.ChaptersDone != 3 {
			t.Fatalf("task %s chapters=%d, want 3", id, v.ChaptersDone)
		}
	}
	waitIdle(t, h.orch)
	if s := h.orch.Stats(ctx); s.Running != 0 || s.Queued != 0 {
		t.Fatalf("stats running=%d queued=%d after recovery, want 0/0", s.Running, s.Queued)
	}
}

func TestShutdownLeavesTasksResumable(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	g := newGate("writer", 1)
	h.model.Override = g.hook
	ctx := context.Background()

	id, _ := h.orch.Submit(ctx, "u1", request(3))
	g.wait(t)

	shutdown := make(chan error, 1)
	go func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		shutdown <- h.orch.Shutdown(sctx)
	}()
	time.Sleep(50 * time.Millisecond)
	close(g.release)

	if err := <-shutdown; err != nil {
		t.Fatalf("Shutdown err=%v", err)
	}
	stored, err := h.store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if stored.Status != entity.TaskStatusWriting || len(stored.Chapters) != 1 {
		t.Fatalf("stored status=%s chapters=%d, want writing with 1 chapter", stored.Status, len(stored.Chapters))
	}
	if _, err := h.orch.Submit(ctx, "u1", request(3)); !apperrors.IsCode(err, apperrors.CodeOverloaded) {
		t.Fatalf("Submit after shutdown err=%v, want Overloaded", err)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t, testConfig(), 2)
	ctx := context.Background()

	ok, _ := h.orch.Submit(ctx, "u1", request(2))
	waitStatus(t, h.orch, ok, entity.TaskStatusCompleted)

	h.model.Override = func(c llmtest.Call) (llmtest.Step, bool) {
		return llmtest.Step{Text: "not json", Tokens: 1}, c.Role == "planner"
	}
	bad, _ := h.orch.Submit(ctx, "u1", request(2))
	waitStatus(t, h.orch, bad, entity.TaskStatusFailed)
	waitIdle(t, h.orch)

	s := h.orch.Stats(ctx)
	if s.Total != 2 || s.ByStatus[entity.TaskStatusCompleted] != 1 || s.ByStatus[entity.TaskStatusFailed] != 1 {
		t.Fatalf("stats=%+v", s)
	}
	if s.SuccessRate != 0.5 || s.Capacity != 2 {
		t.Fatalf("stats=%+v", s)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		h.orch.mu.RLock()
		tracked := len(h.orch.statusOf)
		h.orch.mu.RUnlock()
		if tracked == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished tasks still tracked individually: %d", tracked)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := h.orch.Stats(ctx); s.Total != 2 || s.ByStatus[entity.TaskStatusCompleted] != 1 {
		t.Fatalf("counts lost after pruning: %+v", s)
	}
}

func TestLedgerRefundsUnusedReservation(t *testing.T) {
	h := newHarness(t, testConfig(), 2)
	ctx := context.Background()

	id, _ := h.orch.Submit(ctx, "u1", request(2))
	waitStatus(t, h.orch, id, entity.TaskStatusCompleted)
	waitIdle(t, h.orch)

	task, _ := h.orch.GetResult(ctx, id)
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, used := h.budget.Usage("u1")
		if used == task.Metadata.TotalTokens {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("budget used=%d, want actual tokens %d", used, task.Metadata.TotalTokens)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type brokenStore struct{ *memory.TaskStore }

func (brokenStore) Save(context.Context, *entity.Task) error { return errors.New("disk full") }

type refundFailingBudget struct{ quota.Budget }

func (refundFailingBudget) Reconcile(context.Context, string, int64, int64) error {
	return errors.New("redis down")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSubmitStoreFailureLogsRefundError(t *testing.T) {
	var out syncBuffer
	logger.InitWithWriter(&out, "warn", "json")
	t.Cleanup(func() { logger.Init("info", "json") })

	cfg := testConfig()
	store := brokenStore{memory.NewTaskStore(0)}
	budget := refundFailingBudget{quota.NewMemoryBudget(quota.LimitsFromConfig(cfg.Quota))}
	catalog := prompt.DefaultCatalog()
	engine := generation.NewEngine(llmtest.NewNovelModel(2, 10).Client(), prompt.NewRegistry(), catalog, store, cfg)
	ctrl := admission.NewController(cfg.Admission)
	orch := New(cfg, store, budget, ctrl, engine, catalog, nil)

	_, err := orch.Submit(context.Background(), "u1", request(2))
	if !apperrors.IsCode(err, apperrors.CodeStoreError) {
		t.Fatalf("Submit err=%v, want store error", err)
	}
	if !strings.Contains(out.String(), "quota refund failed") || !strings.Contains(out.String(), "redis down") {
		t.Fatalf("refund failure not logged:\n%s", out.String())
	}
	if active, waiting := ctrl.Stats(); active != 0 || waiting != 0 {
		t.Fatalf("slot leaked: active=%d waiting=%d", active, waiting)
	}
}
