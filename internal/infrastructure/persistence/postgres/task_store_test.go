package postgres

import (
	"testing"
	"time"

	"ai-novel-orchestrator/internal/domain/entity"
)

func TestTaskRecordRoundTrip(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	task := entity.NewTask("t1", "alice", entity.Request{Theme: "雨夜", Genre: "mystery", Style: "zhihu", WordCount: 2000, ChapterCount: 2}, now)
	_ = task.TransitionTo(entity.TaskStatusOutlining, "", now)
	_ = task.SetOutline(&entity.Outline{Title: "雨夜来信", Chapters: []entity.ChapterSpec{
		{Index: 1, Title: "来信", Synopsis: "a"},
		{Index: 2, Title: "真相", Synopsis: "b"},
	}}, now)
	_ = task.Fail("PERMANENT", "boom", now)

	rec, err := toRecord(task)
	if err != nil {
		t.Fatalf("toRecord err=%v", err)
	}
	if rec.Status != "failed" || rec.ErrorCode != "PERMANENT" || rec.Title != "雨夜来信" {
		t.Fatalf("rec=%+v", rec)
	}
	if len(rec.ChapterTitles) != 2 || rec.ChapterTitles[1] != "真相" {
		t.Fatalf("chapter titles=%v", rec.ChapterTitles)
	}

	back, err := rec.toTask()
	if err != nil {
		t.Fatalf("toTask err=%v", err)
	}
	if back.ID != "t1" || back.Error.Stage != entity.TaskStatusOutlining || back.Outline.Chapters[0].Title != "来信" {
		t.Fatalf("back=%+v", back)
	}
}

func TestTaskRecordWithoutOutline(t *testing.T) {
	task := entity.NewTask("t2", "bob", entity.Request{Theme: "x", ChapterCount: 3}, time.Unix(0, 0))
	rec, err := toRecord(task)
	if err != nil {
		t.Fatalf("toRecord err=%v", err)
	}
	if rec.Title != "" || rec.ChapterTitles != nil || rec.ErrorCode != "" {
		t.Fatalf("rec=%+v", rec)
	}
}
