package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/infrastructure/messaging"
)

type fakeLogs struct {
	created []*entity.StageLog
	err     error
}

func (f *fakeLogs) Create(_ context.Context, log *entity.StageLog) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, log)
	return nil
}

func (f *fakeLogs) Stats(context.Context, time.Time) ([]*entity.StageStats, error) {
	return nil, nil
}

func (f *fakeLogs) ListByTask(context.Context, string) ([]*entity.StageLog, error) {
	return f.created, nil
}

func message(t *testing.T, ev entity.TaskEvent) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewEventMessage(ev)
	if err != nil {
		t.Fatalf("NewEventMessage err=%v", err)
	}
	return msg
}

func TestHandleStageWritesLog(t *testing.T) {
	logs := &fakeLogs{}
	a := NewArchiver(logs)
	ev := entity.TaskEvent{ID: "e1", Type: entity.TaskEventStage, TaskID: "t1", Stage: entity.StageReview, Success: true, Tokens: 30}

	if err := a.HandleStage(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("HandleStage err=%v", err)
	}
	if len(logs.created) != 1 {
		t.Fatalf("created=%d, want 1", len(logs.created))
	}
	got := logs.created[0]
	if got.EventID != "e1" || got.Stage != "review" || got.Status != entity.StageLogSuccess || got.Tokens != 30 {
		t.Fatalf("log=%+v", got)
	}
}

func TestHandleStageRejectsStatusEvent(t *testing.T) {
	a := NewArchiver(&fakeLogs{})
	msg := message(t, entity.TaskEvent{ID: "e2", Type: entity.TaskEventStatus})
	if err := a.HandleStage(context.Background(), msg); err == nil {
		t.Fatalf("HandleStage err=nil for status event")
	}
	if err := a.HandleStatus(context.Background(), msg); err != nil {
		t.Fatalf("HandleStatus err=%v", err)
	}
}

func TestHandleStagePropagatesStoreError(t *testing.T) {
	a := NewArchiver(&fakeLogs{err: errors.New("db down")})
	ev := entity.TaskEvent{ID: "e3", Type: entity.TaskEventStage, Stage: entity.StageOutline}
	if err := a.HandleStage(context.Background(), message(t, ev)); err == nil {
		t.Fatalf("HandleStage err=nil, want store error so the message is retried")
	}
}
