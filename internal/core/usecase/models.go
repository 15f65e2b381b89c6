package usecase

import (
	"sort"
	"strings"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

// ChatModels maps llm_provider names to chat models. Unknown or empty names
// resolve to the default provider.
type ChatModels struct {
	byName      map[string]ports.ChatModel
	defaultName string
}

func NewChatModels(defaultName string, models map[string]ports.ChatModel) *ChatModels {
	byName := make(map[string]ports.ChatModel, len(models))
	for name, m := range models {
		if m == nil {
			continue
		}
		byName[normalizeProvider(name)] = m
	}
	return &ChatModels{byName: byName, defaultName: normalizeProvider(defaultName)}
}

// SingleChatModel registers one model as the default.
func SingleChatModel(m ports.ChatModel) *ChatModels {
	return NewChatModels("default", map[string]ports.ChatModel{"default": m})
}

func (r *ChatModels) For(provider string) ports.ChatModel {
	if m, ok := r.byName[normalizeProvider(provider)]; ok {
		return m
	}
	return r.byName[r.defaultName]
}

// Providers lists the registered provider names in sorted order.
func (r *ChatModels) Providers() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
