// Package messaging 基于 Redis Stream 的任务事件投递
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"ai-novel-orchestrator/internal/domain/entity"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TaskID    string            `json:"task_id"`
	Identity  string            `json:"identity"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// 消息类型
const (
	TypeTaskStatus = "task.status"
	TypeTaskStage  = "task.stage"
)

// NewMessage 创建新消息
func NewMessage(id, msgType, taskID, identity string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		TaskID:    taskID,
		Identity:  identity,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewEventMessage 将任务事件包装为消息
func NewEventMessage(ev entity.TaskEvent) (*Message, error) {
	msgType := TypeTaskStatus
	if ev.Type == entity.TaskEventStage {
		msgType = TypeTaskStage
	}
	msg, err := NewMessage(ev.ID, msgType, ev.TaskID, ev.Identity, ev)
	if err != nil {
		return nil, err
	}
	if !ev.OccurredAt.IsZero() {
		msg.CreatedAt = ev.OccurredAt
	}
	return msg, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Event 解析任务事件载荷
func (m *Message) Event() (entity.TaskEvent, error) {
	var ev entity.TaskEvent
	if err := m.UnmarshalPayload(&ev); err != nil {
		return ev, fmt.Errorf("decode task event %s: %w", m.ID, err)
	}
	return ev, nil
}

// Stream 流定义
type Stream string

// StreamNovelEvents 任务生命周期事件流
const StreamNovelEvents Stream = "stream:novel:events"

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

// ConsumerGroupArchiver 阶段流水归档
const ConsumerGroupArchiver ConsumerGroup = "cg-log-archiver"

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 第 retryCount 次重投前的等待时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			return c.Max
		}
	}
	return backoff
}
