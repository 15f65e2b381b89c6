package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const (
	rewriteHistoryMessages = 4
	rewriteMessageChars    = 200
)

const contextualRewritePrompt = `Given the conversation context, rewrite the user's query to be self-contained and clear.
Include any relevant context from the conversation that would help with document retrieval.
Return only the rewritten query, nothing else.`

// QueryPlanner turns one user question into the list of query texts to search
// with. The original (or rewritten) query is always first.
type QueryPlanner struct {
	models *ChatModels
	logger *zap.Logger
}

func NewQueryPlanner(models *ChatModels, logger *zap.Logger) *QueryPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPlanner{models: models, logger: logger}
}

// Plan never fails. LLM errors degrade to the single original query.
func (p *QueryPlanner) Plan(ctx context.Context, query string, history []domain.ChatMessage, cfg domain.RetrievalConfig) []string {
	query = strings.TrimSpace(query)
	model := p.models.For(cfg.LLMProvider)

	if cfg.ContextualRewrite && len(history) > 0 {
		query = p.rewrite(ctx, model, query, history)
	}

	if !cfg.Strategy.IsMultiQuery() || cfg.NumberOfQueries <= 1 {
		return []string{query}
	}
	return p.variations(ctx, model, query, cfg.NumberOfQueries)
}

func (p *QueryPlanner) variations(ctx context.Context, model ports.ChatModel, query string, total int) []string {
	want := total - 1
	system := fmt.Sprintf(`Generate %d alternative ways to phrase this question for document search.
Use different keywords and synonyms while maintaining the same intent.
Return exactly %d variations.
Respond with JSON only: {"queries": ["...", "..."]}`, want, want)

	raw, err := model.Generate(ctx, []domain.LLMMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Original query: " + query},
	})
	if err != nil {
		p.logger.Warn("query variation failed", zap.Error(err))
		return []string{query}
	}

	variants, err := parseQueryVariations(raw)
	if err != nil {
		p.logger.Warn("query variation unparsable", zap.Error(err))
		return []string{query}
	}

	out := []string{query}
	for _, v := range variants {
		if len(out) > want {
			break
		}
		if v == "" || strings.EqualFold(v, query) {
			continue
		}
		out = append(out, v)
	}
	p.logger.Debug("planned query variations", zap.Strings("queries", out))
	return out
}

func (p *QueryPlanner) rewrite(ctx context.Context, model ports.ChatModel, query string, history []domain.ChatMessage) string {
	var b strings.Builder
	for _, msg := range lastMessages(history, rewriteHistoryMessages) {
		content := msg.Content
		if r := []rune(content); len(r) > rewriteMessageChars {
			content = string(r[:rewriteMessageChars])
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}

	rewritten, err := model.Generate(ctx, []domain.LLMMessage{
		{Role: domain.RoleSystem, Content: contextualRewritePrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Context:\n%s\nQuery: %s", b.String(), query)},
	})
	rewritten = strings.TrimSpace(rewritten)
	if err != nil || rewritten == "" {
		if err != nil {
			p.logger.Warn("contextual rewrite failed", zap.Error(err))
		}
		return query
	}
	return rewritten
}

func parseQueryVariations(raw string) ([]string, error) {
	var payload struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parse query variations json: %w", err)
	}
	out := make([]string, 0, len(payload.Queries))
	for _, q := range payload.Queries {
		out = append(out, strings.TrimSpace(q))
	}
	return out, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func lastMessages(history []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
