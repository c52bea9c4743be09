package llm

import (
	"ai-novel-orchestrator/internal/config"
)

// NewClient 组装生产用客户端：重试包装 -> 提供商降级路由 -> Eino ChatModel
func NewClient(cfg *config.Config, factory *EinoFactory) Client {
	names := factory.ProviderNames()
	clients := make([]NamedClient, 0, len(names))
	for _, name := range names {
		clients = append(clients, NamedClient{
			Name:   name,
			Client: NewEinoClient(factory, name, factory.ModelName(name)),
		})
	}
	return NewRetryClient(NewRouter(clients...), PolicyFromConfig(cfg.Retry))
}
