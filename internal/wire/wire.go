//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"ai-novel-orchestrator/internal/application/generation"
	"ai-novel-orchestrator/internal/application/orchestrator"
	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/infrastructure/llm"
	"ai-novel-orchestrator/internal/interfaces/http/handler"
	"ai-novel-orchestrator/internal/interfaces/http/router"
	"ai-novel-orchestrator/internal/workflow/prompt"
)

// InitializeApp 初始化 API 服务（路由器 + 编排器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		DataSet,
		GenerationSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeArchiver 初始化事件归档服务
func InitializeArchiver(ctx context.Context, cfg *config.Config) (*ArchiverApp, func(), error) {
	wire.Build(
		ProvideRequiredRedisClient,
		ProvideRequiredPostgresClient,
		ProvideArchiveStageLogRepository,
		ProvideArchiveConsumer,
		ProvideArchiver,
		wire.Struct(new(ArchiverApp), "*"),
	)
	return nil, nil, nil
}

// DataSet 存储、配额与事件出口
var DataSet = wire.NewSet(
	ProvideRedisClient,
	ProvidePostgresClient,
	ProvideTaskStore,
	ProvideBudget,
	ProvideEventPublisher,
	ProvideExportCache,
	ProvideStageLogRepository,
)

// GenerationSet 模型客户端、生成引擎与编排器
var GenerationSet = wire.NewSet(
	llm.NewEinoFactory,
	llm.NewClient,
	prompt.NewRegistry,
	prompt.DefaultCatalog,
	ProvideAdmission,
	generation.NewEngine,
	orchestrator.New,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthChecks,
	ProvideHealthHandler,
	ProvideNovelHandler,
	handler.NewCatalogHandler,
	ProvideStatsHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
