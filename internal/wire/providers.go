package wire

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/application/admission"
	"ai-novel-orchestrator/internal/application/archive"
	"ai-novel-orchestrator/internal/application/orchestrator"
	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/repository"
	"ai-novel-orchestrator/internal/infrastructure/messaging"
	"ai-novel-orchestrator/internal/infrastructure/persistence/memory"
	"ai-novel-orchestrator/internal/infrastructure/persistence/postgres"
	"ai-novel-orchestrator/internal/infrastructure/persistence/redis"
	"ai-novel-orchestrator/internal/interfaces/http/handler"
	"ai-novel-orchestrator/internal/interfaces/http/router"
	"ai-novel-orchestrator/pkg/logger"
)

// App API 服务容器
type App struct {
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
}

// Engine 返回 Gin Engine
func (a *App) Engine() *gin.Engine {
	return a.Router.Engine()
}

// ArchiverApp 归档服务容器
type ArchiverApp struct {
	Consumer *messaging.Consumer
	Archiver *archive.Archiver
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == "redis" || cfg.Quota.Backend == "redis" || cfg.Messaging.RedisStream.Enabled
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.Store.Backend == "postgres" || cfg.Database.Postgres.Enabled
}

// ProvideRedisClient 按需提供 Redis 客户端，未使用 Redis 的配置返回 nil
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !needsRedis(cfg) {
		return nil, func() {}, nil
	}
	return ProvideRequiredRedisClient(ctx, cfg)
}

// ProvideRequiredRedisClient 提供 Redis 客户端
func ProvideRequiredRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "redis connected", "host", cfg.Cache.Redis.Host, "port", cfg.Cache.Redis.Port)
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvidePostgresClient 按需提供 PostgreSQL 客户端
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !needsPostgres(cfg) {
		return nil, func() {}, nil
	}
	return ProvideRequiredPostgresClient(ctx, cfg)
}

// ProvideRequiredPostgresClient 提供 PostgreSQL 客户端
func ProvideRequiredPostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "postgres connected", "host", cfg.Database.Postgres.Host, "database", cfg.Database.Postgres.Database)
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideTaskStore 按 store.backend 选择任务存储
func ProvideTaskStore(cfg *config.Config, rc *redis.Client, pc *postgres.Client) (repository.TaskStore, error) {
	switch cfg.Store.Backend {
	case "redis":
		return redis.NewTaskStore(rc, cfg.Store.TTL), nil
	case "postgres":
		return postgres.NewTaskStore(pc), nil
	case "memory", "":
		return memory.NewTaskStore(cfg.Store.TTL), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// ProvideBudget 按 quota.backend 选择配额实现
func ProvideBudget(cfg *config.Config, rc *redis.Client) quota.Budget {
	limits := quota.LimitsFromConfig(cfg.Quota)
	if cfg.Quota.Backend == "redis" {
		return redis.NewBudget(rc, limits)
	}
	return quota.NewMemoryBudget(limits)
}

// ProvideEventPublisher 启用 Redis Stream 时提供事件生产者
func ProvideEventPublisher(cfg *config.Config, rc *redis.Client) orchestrator.EventPublisher {
	if !cfg.Messaging.RedisStream.Enabled || rc == nil {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(rc.Redis(), int64(maxLen))
}

// ProvideExportCache 有 Redis 时缓存导出结果
func ProvideExportCache(cfg *config.Config, rc *redis.Client) handler.ExportCache {
	if rc == nil {
		return nil
	}
	return redis.NewExportCache(rc, cfg.Store.TTL)
}

// ProvideStageLogRepository 有 PostgreSQL 时提供阶段流水查询
func ProvideStageLogRepository(pc *postgres.Client) repository.StageLogRepository {
	if pc == nil {
		return nil
	}
	return postgres.NewStageLogRepository(pc)
}

// ProvideAdmission 提供准入控制器
func ProvideAdmission(cfg *config.Config) *admission.Controller {
	return admission.NewController(cfg.Admission)
}

// ProvideHealthChecks 就绪检查依赖
func ProvideHealthChecks(rc *redis.Client, pc *postgres.Client) map[string]handler.HealthChecker {
	checks := make(map[string]handler.HealthChecker, 2)
	if rc != nil {
		checks["redis"] = rc
	}
	if pc != nil {
		checks["postgres"] = pc
	}
	return checks
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, checks map[string]handler.HealthChecker) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, checks)
}

// ProvideNovelHandler 提供生成任务处理器
func ProvideNovelHandler(orch *orchestrator.Orchestrator, cache handler.ExportCache) *handler.NovelHandler {
	return handler.NewNovelHandler(orch, cache, redis.ExportKey)
}

// ProvideStatsHandler 提供统计处理器
func ProvideStatsHandler(orch *orchestrator.Orchestrator, logs repository.StageLogRepository) *handler.StatsHandler {
	return handler.NewStatsHandler(orch, logs)
}

// ProvideArchiveStageLogRepository 归档服务的阶段流水仓储
func ProvideArchiveStageLogRepository(pc *postgres.Client) repository.StageLogRepository {
	return postgres.NewStageLogRepository(pc)
}

// ProvideArchiveConsumer 提供事件流消费者
func ProvideArchiveConsumer(cfg *config.Config, rc *redis.Client) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	group := messaging.ConsumerGroup(rs.ConsumerGroup)
	if group == "" {
		group = messaging.ConsumerGroupArchiver
	}
	return messaging.NewConsumer(rc.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamNovelEvents,
		Group:         group,
		ConsumerName:  messaging.HostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

// ProvideArchiver 创建归档处理器并挂到消费者上
func ProvideArchiver(logs repository.StageLogRepository, consumer *messaging.Consumer) *archive.Archiver {
	a := archive.NewArchiver(logs)
	a.Register(consumer)
	return a
}
