package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-novel-orchestrator/internal/domain/entity"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

// taskRecord 任务表行，snapshot 保存完整任务，其余列用于查询
type taskRecord struct {
	ID            string         `gorm:"type:varchar(64);primaryKey"`
	Identity      string         `gorm:"type:varchar(128);index;not null"`
	Status        string         `gorm:"type:varchar(16);index;not null"`
	Progress      int            `gorm:"not null;default:0"`
	Theme         string         `gorm:"type:text;not null"`
	Genre         string         `gorm:"type:varchar(32)"`
	Style         string         `gorm:"type:varchar(32)"`
	ChapterCount  int            `gorm:"not null"`
	Title         string         `gorm:"type:varchar(255)"`
	ChapterTitles pq.StringArray `gorm:"type:text[]"`
	TotalWords    int            `gorm:"not null;default:0"`
	TotalTokens   int64          `gorm:"not null;default:0"`
	ErrorCode     string         `gorm:"type:varchar(32)"`
	Snapshot      string         `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"index"`
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// TableName 表名
func (taskRecord) TableName() string {
	return "novel_tasks"
}

func toRecord(t *entity.Task) (*taskRecord, error) {
	snap, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	rec := &taskRecord{
		ID:           t.ID,
		Identity:     t.Identity,
		Status:       string(t.Status),
		Progress:     t.Progress,
		Theme:        t.Request.Theme,
		Genre:        t.Request.Genre,
		Style:        t.Request.Style,
		ChapterCount: t.Request.ChapterCount,
		TotalWords:   t.Metadata.TotalWords,
		TotalTokens:  t.Metadata.TotalTokens,
		Snapshot:     string(snap),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		CompletedAt:  t.CompletedAt,
	}
	if t.Outline != nil {
		rec.Title = t.Outline.Title
		rec.ChapterTitles = make(pq.StringArray, 0, len(t.Outline.Chapters))
		for _, ch := range t.Outline.Chapters {
			rec.ChapterTitles = append(rec.ChapterTitles, ch.Title)
		}
	}
	if t.Error != nil {
		rec.ErrorCode = t.Error.Code
	}
	return rec, nil
}

func (r *taskRecord) toTask() (*entity.Task, error) {
	var t entity.Task
	if err := json.Unmarshal([]byte(r.Snapshot), &t); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "decode task")
	}
	return &t, nil
}

// TaskStore 持久化任务存储
type TaskStore struct {
	client *Client
}

// NewTaskStore 创建任务存储
func NewTaskStore(client *Client) *TaskStore {
	return &TaskStore{client: client}
}

// Save 单条 upsert
func (s *TaskStore) Save(ctx context.Context, task *entity.Task) error {
	ctx, span := tracer.Start(ctx, "postgres.TaskStore.Save")
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("task.status", string(task.Status)))
	defer span.End()

	rec, err := toRecord(task)
	if err != nil {
		return err
	}
	db := getDB(ctx, s.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error; err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreError, "save task")
	}
	return nil
}

// Load 读取任务
func (s *TaskStore) Load(ctx context.Context, id string) (*entity.Task, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskStore.Load")
	span.SetAttributes(attribute.String("task.id", id))
	defer span.End()

	db := getDB(ctx, s.client.db)
	var rec taskRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail(id)
		}
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "load task")
	}
	return rec.toTask()
}

// ListActive 列出非终态任务
func (s *TaskStore) ListActive(ctx context.Context) ([]*entity.Task, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskStore.ListActive")
	defer span.End()

	db := getDB(ctx, s.client.db)
	var recs []taskRecord
	if err := db.Where("status NOT IN ?", []string{string(entity.TaskStatusCompleted), string(entity.TaskStatusFailed)}).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "list active tasks")
	}

	out := make([]*entity.Task, 0, len(recs))
	for i := range recs {
		t, err := recs[i].toTask()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	span.SetAttributes(attribute.Int("task.active_count", len(out)))
	return out, nil
}
