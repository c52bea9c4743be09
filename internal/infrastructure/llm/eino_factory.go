package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ai-novel-orchestrator/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 按提供商名称获取 Eino ChatModel
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// EinoFactory 管理多个 Eino ChatModel 客户端实例，按需惰性创建
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，未指定时返回默认提供商
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in llm config", name)
	}
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: invalid api key (empty)", name)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   ptr(providerCfg.MaxTokens),
		Temperature: ptr(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// ModelName 返回提供商配置的模型名
func (f *EinoFactory) ModelName(name string) string {
	if name == "" {
		name = f.config.DefaultProvider
	}
	return f.config.Providers[name].Model
}

// ProviderNames 按 默认 -> 降级链 的顺序返回去重后的提供商，未配置的名称被忽略
func (f *EinoFactory) ProviderNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(f.config.Providers))
	add := func(n string) {
		if _, ok := f.config.Providers[n]; ok && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	add(f.config.DefaultProvider)
	for _, n := range f.config.FallbackChain {
		add(n)
	}
	if len(names) == 0 {
		rest := make([]string, 0, len(f.config.Providers))
		for n := range f.config.Providers {
			rest = append(rest, n)
		}
		sort.Strings(rest)
		for _, n := range rest {
			add(n)
		}
	}
	return names
}

func ptr[T any](v T) *T {
	return &v
}
