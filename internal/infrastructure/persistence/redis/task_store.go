package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-novel-orchestrator/internal/domain/entity"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

const (
	taskKeyPrefix = "task:"
	activeSetKey  = "task:active"
)

// TaskStore 以 JSON 快照保存任务，非终态任务 ID 记录在 active 集合中
type TaskStore struct {
	client *Client
	ttl    time.Duration
}

// NewTaskStore 创建任务存储，ttl 为 0 时不过期
func NewTaskStore(client *Client, ttl time.Duration) *TaskStore {
	return &TaskStore{client: client, ttl: ttl}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

// Save 在一个 MULTI 中写入快照并维护 active 集合
func (s *TaskStore) Save(ctx context.Context, task *entity.Task) error {
	ctx, span := tracer.Start(ctx, "redis.TaskStore.Save",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.status", string(task.Status)),
		))
	defer span.End()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, s.ttl)
		if task.Status.IsTerminal() {
			pipe.SRem(ctx, activeSetKey, task.ID)
		} else {
			pipe.SAdd(ctx, activeSetKey, task.ID)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreError, "save task")
	}
	return nil
}

// Load 读取任务快照
func (s *TaskStore) Load(ctx context.Context, id string) (*entity.Task, error) {
	ctx, span := tracer.Start(ctx, "redis.TaskStore.Load",
		trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, apperrors.ErrNotFound.WithDetail(id)
		}
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "load task")
	}
	return decodeTask(data)
}

// ListActive 列出非终态任务，按创建时间排序；已过期的 ID 顺带清理
func (s *TaskStore) ListActive(ctx context.Context) ([]*entity.Task, error) {
	ctx, span := tracer.Start(ctx, "redis.TaskStore.ListActive")
	defer span.End()

	ids, err := s.client.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "list active tasks")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	values, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "load active tasks")
	}

	var stale []any
	out := make([]*entity.Task, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		t, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		if t.Status.IsTerminal() {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, t)
	}
	if len(stale) > 0 {
		if err := s.client.rdb.SRem(ctx, activeSetKey, stale...).Err(); err != nil {
			span.RecordError(err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	span.SetAttributes(attribute.Int("task.active_count", len(out)))
	return out, nil
}

func decodeTask(data []byte) (*entity.Task, error) {
	var t entity.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreError, "decode task")
	}
	return &t, nil
}
