// Package prompt 管理各角色的提示词模板与题材文风目录
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"ai-novel-orchestrator/internal/infrastructure/llm"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Registry 按角色缓存 Eino ChatTemplate
type Registry struct {
	mu    sync.RWMutex
	cache map[Role]einoprompt.ChatTemplate
}

// NewRegistry 创建模板注册表
func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[Role]einoprompt.ChatTemplate),
	}
}

// ChatTemplate 获取角色模板
func (r *Registry) ChatTemplate(role Role) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[role]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[role]; ok {
		return tpl, nil
	}

	if _, ok := builders[role]; !ok {
		return nil, fmt.Errorf("unknown prompt role: %s", role)
	}
	system, err := readEmbeddedText(fmt.Sprintf("templates/%s.system.txt", role))
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(fmt.Sprintf("templates/%s.user.txt", role))
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[role] = tpl
	return tpl, nil
}

// Build 为角色构造一次调用的提示词
func (r *Registry) Build(ctx context.Context, role Role, in Input) (llm.Prompt, error) {
	tpl, err := r.ChatTemplate(role)
	if err != nil {
		return llm.Prompt{}, err
	}
	msgs, err := tpl.Format(ctx, builders[role](in))
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("format %s prompt: %w", role, err)
	}

	var p llm.Prompt
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			p.System = m.Content
		case schema.User:
			p.User = m.Content
		}
	}
	return p, nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
