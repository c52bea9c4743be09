package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// ExportCache 已完成任务的导出结果缓存，任务完成后内容不再变化
type ExportCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewExportCache 创建导出缓存
func NewExportCache(client *Client, ttl time.Duration) *ExportCache {
	return &ExportCache{client: client, ttl: ttl}
}

// ExportKey 导出缓存键
func ExportKey(taskID, format string) string {
	return "export:" + taskID + ":" + format
}

// GetOrRender Read-Through 缓存，使用 singleflight 合并并发的同键渲染
func (c *ExportCache) GetOrRender(ctx context.Context, key string, render func() ([]byte, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrRender",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	if !IsNil(err) {
		// 缓存不可用时直接渲染
		span.RecordError(err)
		return render()
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		if val, err := c.client.rdb.Get(ctx, key).Bytes(); err == nil {
			return val, nil
		}
		data, err := render()
		if err != nil {
			return nil, err
		}
		if err := c.client.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return data, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.([]byte), nil
}
