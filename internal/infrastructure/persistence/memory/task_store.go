// Package memory 提供进程内的任务存储
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-novel-orchestrator/internal/domain/entity"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

type record struct {
	task      *entity.Task
	expiresAt time.Time
}

// TaskStore 进程内任务存储，读写均为深拷贝
type TaskStore struct {
	mu    sync.RWMutex
	items map[string]record
	ttl   time.Duration
	now   func() time.Time
}

// NewTaskStore 创建存储，ttl 为 0 时不过期
func NewTaskStore(ttl time.Duration) *TaskStore {
	return &TaskStore{
		items: make(map[string]record),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock 替换时钟
func (s *TaskStore) WithClock(now func() time.Time) *TaskStore {
	s.now = now
	return s
}

// Save 实现 repository.TaskStore
func (s *TaskStore) Save(_ context.Context, task *entity.Task) error {
	if task == nil || task.ID == "" {
		return apperrors.ErrInvalidRequest.WithDetail("task id is required")
	}
	cp := task.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	rec := record{task: cp}
	if s.ttl > 0 {
		rec.expiresAt = s.now().Add(s.ttl)
	}
	s.items[task.ID] = rec
	return nil
}

// Load 实现 repository.TaskStore
func (s *TaskStore) Load(_ context.Context, id string) (*entity.Task, error) {
	s.mu.RLock()
	rec, ok := s.items[id]
	s.mu.RUnlock()
	if !ok || s.expired(rec) {
		return nil, apperrors.ErrNotFound.WithDetail(id)
	}
	return rec.task.Clone(), nil
}

// ListActive 实现 repository.TaskStore
func (s *TaskStore) ListActive(_ context.Context) ([]*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	out := make([]*entity.Task, 0)
	for _, rec := range s.items {
		if rec.task.Status.IsTerminal() {
			continue
		}
		out = append(out, rec.task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len 记录数，过期记录在下次 Save 或 ListActive 时清理
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *TaskStore) expired(rec record) bool {
	return !rec.expiresAt.IsZero() && s.now().After(rec.expiresAt)
}

// evictLocked 删除过期记录，调用方需持有写锁
func (s *TaskStore) evictLocked() {
	if s.ttl <= 0 {
		return
	}
	for id, rec := range s.items {
		if s.expired(rec) {
			delete(s.items, id)
		}
	}
}
