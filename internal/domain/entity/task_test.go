package entity

import (
	"testing"
	"time"

	apperrors "ai-novel-orchestrator/pkg/errors"
)

func newTestTask(chapters int) *Task {
	return NewTask("t1", "alice", Request{Theme: "a sentient AI", Genre: "scifi", Style: "tense", WordCount: 3000, ChapterCount: chapters}, time.Unix(0, 0))
}

func testOutline(n int) *Outline {
	specs := make([]ChapterSpec, n)
	for i := range specs {
		specs[i] = ChapterSpec{Index: i + 1, Title: "c", Synopsis: "s"}
	}
	return &Outline{Title: "Book", Chapters: specs}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskStatusPending, TaskStatusOutlining, true},
		{TaskStatusOutlining, TaskStatusWriting, true},
		{TaskStatusWriting, TaskStatusPolishing, true},
		{TaskStatusPolishing, TaskStatusCompleted, true},
		{TaskStatusWriting, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusWriting, false},
		{TaskStatusWriting, TaskStatusOutlining, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusFailed, TaskStatusOutlining, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestProgressIsMonotonicAndCappedBeforeCompletion(t *testing.T) {
	task := newTestTask(1)
	now := time.Now()
	task.SetProgress(40, "writing", now)
	task.SetProgress(20, "", now)
	if task.Progress != 40 {
		t.Fatalf("progress=%d, want 40", task.Progress)
	}
	task.SetProgress(150, "", now)
	if task.Progress != 99 {
		t.Fatalf("progress=%d, want 99 before completion", task.Progress)
	}
}

func TestPolishingRequiresAllChapters(t *testing.T) {
	task := newTestTask(2)
	now := time.Now()
	_ = task.TransitionTo(TaskStatusOutlining, "", now)
	if err := task.SetOutline(testOutline(2), now); err != nil {
		t.Fatalf("SetOutline err=%v", err)
	}
	_ = task.TransitionTo(TaskStatusWriting, "", now)
	if err := task.AppendChapter(Chapter{Index: 1, Content: "一二三", WordCount: 3}, now); err != nil {
		t.Fatalf("AppendChapter err=%v", err)
	}
	err := task.TransitionTo(TaskStatusPolishing, "", now)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("TransitionTo(polishing) err=%v, want conflict", err)
	}
	if err := task.AppendChapter(Chapter{Index: 2, Content: "四五", WordCount: 2}, now); err != nil {
		t.Fatalf("AppendChapter err=%v", err)
	}
	if err := task.AppendChapter(Chapter{Index: 3}, now); err == nil {
		t.Fatalf("AppendChapter beyond count err=nil")
	}
	if err := task.TransitionTo(TaskStatusPolishing, "", now); err != nil {
		t.Fatalf("TransitionTo(polishing) err=%v", err)
	}
	if err := task.ReplaceChapter(1, "一二三四五六", now); err != nil {
		t.Fatalf("ReplaceChapter err=%v", err)
	}
	if task.Metadata.TotalWords != 8 || task.Chapters[0].Revision != 1 {
		t.Fatalf("words=%d revision=%d", task.Metadata.TotalWords, task.Chapters[0].Revision)
	}
	if err := task.TransitionTo(TaskStatusCompleted, "done", now); err != nil {
		t.Fatalf("complete err=%v", err)
	}
	if task.Progress != 100 || task.CompletedAt == nil {
		t.Fatalf("progress=%d completedAt=%v", task.Progress, task.CompletedAt)
	}
}

func TestReviewMarkerTracksPendingRevisions(t *testing.T) {
	task := newTestTask(3)
	now := time.Now()
	if err := task.MarkReviewed([]int{1}, now); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("MarkReviewed outside polishing err=%v, want conflict", err)
	}
	_ = task.TransitionTo(TaskStatusOutlining, "", now)
	_ = task.SetOutline(testOutline(3), now)
	_ = task.TransitionTo(TaskStatusWriting, "", now)
	for i := 1; i <= 3; i++ {
		_ = task.AppendChapter(Chapter{Index: i, Content: "正文", WordCount: 2}, now)
	}
	if err := task.TransitionTo(TaskStatusPolishing, "", now); err != nil {
		t.Fatalf("TransitionTo(polishing) err=%v", err)
	}
	if err := task.MarkReviewed([]int{4}, now); err == nil {
		t.Fatalf("MarkReviewed with unknown chapter err=nil")
	}
	if err := task.MarkReviewed([]int{3, 1}, now); err != nil {
		t.Fatalf("MarkReviewed err=%v", err)
	}
	if err := task.MarkReviewed(nil, now); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("second MarkReviewed err=%v, want conflict", err)
	}
	task.CompleteRevision(3)
	if len(task.Metadata.PendingRevisions) != 1 || task.Metadata.PendingRevisions[0] != 1 {
		t.Fatalf("pending=%v, want [1]", task.Metadata.PendingRevisions)
	}
	task.CompleteRevision(2)
	task.CompleteRevision(1)
	if task.Metadata.PendingRevisions != nil || !task.Metadata.Reviewed {
		t.Fatalf("pending=%v reviewed=%v", task.Metadata.PendingRevisions, task.Metadata.Reviewed)
	}
	cp := task.Clone()
	if !cp.Metadata.Reviewed {
		t.Fatalf("clone lost the review marker")
	}
}

func TestChapterRequiresOutlineAndOrder(t *testing.T) {
	task := newTestTask(2)
	now := time.Now()
	if err := task.AppendChapter(Chapter{Index: 1}, now); err == nil {
		t.Fatalf("AppendChapter without outline err=nil")
	}
	_ = task.SetOutline(testOutline(2), now)
	if err := task.AppendChapter(Chapter{Index: 2}, now); err == nil {
		t.Fatalf("AppendChapter out of order err=nil")
	}
	if err := task.SetOutline(testOutline(2), now); err == nil {
		t.Fatalf("second SetOutline err=nil")
	}
}

func TestFailIsTerminalAndImmutable(t *testing.T) {
	task := newTestTask(1)
	now := time.Now()
	_ = task.TransitionTo(TaskStatusOutlining, "", now)
	if err := task.Fail("4001", "boom", now); err != nil {
		t.Fatalf("Fail err=%v", err)
	}
	if task.Error.Stage != TaskStatusOutlining {
		t.Fatalf("error stage=%s", task.Error.Stage)
	}
	if err := task.Fail("4002", "again", now); err == nil {
		t.Fatalf("second Fail err=nil")
	}
	if task.Error.Code != "4001" {
		t.Fatalf("error overwritten: %+v", task.Error)
	}
	task.SetProgress(80, "", now)
	if task.Progress != 0 {
		t.Fatalf("progress moved after failure: %d", task.Progress)
	}
}

func TestCloneIsDeep(t *testing.T) {
	task := newTestTask(1)
	_ = task.SetOutline(testOutline(1), time.Now())
	cp := task.Clone()
	cp.Outline.Chapters[0].Title = "changed"
	if task.Outline.Chapters[0].Title == "changed" {
		t.Fatalf("clone shares outline")
	}
}

func TestCountWords(t *testing.T) {
	cases := map[string]int{
		"":                 0,
		"hello world":      2,
		"你好，世界":            4,
		"AI 觉醒了 v2 版本":     7,
		"  multiple   sp ": 2,
	}
	for in, want := range cases {
		if got := CountWords(in); got != want {
			t.Fatalf("CountWords(%q)=%d, want %d", in, got, want)
		}
	}
}
