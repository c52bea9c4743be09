package entity

import (
	"testing"
	"time"
)

func TestTaskEventStageLog(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ev := TaskEvent{
		ID: "e1", Type: TaskEventStage, TaskID: "t1", Identity: "alice",
		Stage: StageChapter, Chapter: 3, Success: false,
		Tokens: 120, ModelCalls: 2, DurationMs: 900, Error: "boom", OccurredAt: at,
	}
	log := ev.StageLog()
	if log == nil {
		t.Fatalf("StageLog=nil for stage event")
	}
	if log.EventID != "e1" || log.Stage != "chapter" || log.Chapter != 3 || log.Status != StageLogFailed {
		t.Fatalf("log=%+v", log)
	}
	if log.Tokens != 120 || log.ModelCalls != 2 || !log.CreatedAt.Equal(at) {
		t.Fatalf("log=%+v", log)
	}

	ev.Success = true
	if ev.StageLog().Status != StageLogSuccess {
		t.Fatalf("status=%s, want success", ev.StageLog().Status)
	}

	ev.Type = TaskEventStatus
	if ev.StageLog() != nil {
		t.Fatalf("status events must not produce a stage log")
	}
}
