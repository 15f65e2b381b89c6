package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

func multiQueryConfig(n int) domain.RetrievalConfig {
	cfg := domain.DefaultRetrievalConfig()
	cfg.Strategy = domain.StrategyMultiQueryVector
	cfg.NumberOfQueries = n
	return cfg
}

func TestPlanSingleQueryStrategiesSkipLLM(t *testing.T) {
	model := &fakeChatModel{reply: `{"queries":["x"]}`}
	planner := NewQueryPlanner(SingleChatModel(model), nil)

	for _, s := range []domain.Strategy{domain.StrategyBasic, domain.StrategyHybrid} {
		cfg := domain.DefaultRetrievalConfig()
		cfg.Strategy = s
		assert.Equal(t, []string{"what is rrf"}, planner.Plan(context.Background(), "what is rrf", nil, cfg))
	}
	assert.Empty(t, model.generated)
}

func TestPlanMultiQueryPrependsOriginal(t *testing.T) {
	model := &fakeChatModel{reply: "Here you go:\n{\"queries\": [\"explain reciprocal rank fusion\", \"rrf ranking method\", \"extra\"]}"}
	planner := NewQueryPlanner(SingleChatModel(model), nil)

	queries := planner.Plan(context.Background(), "what is rrf", nil, multiQueryConfig(3))

	require.Equal(t, []string{"what is rrf", "explain reciprocal rank fusion", "rrf ranking method"}, queries)
	require.Len(t, model.generated, 1)
	msgs := model.generated[0]
	assert.Contains(t, msgs[0].Content, "Generate 2 alternative ways to phrase this question")
	assert.Equal(t, "Original query: what is rrf", msgs[1].Content)
}

func TestPlanDegradesToOriginalOnFailure(t *testing.T) {
	planner := NewQueryPlanner(SingleChatModel(&fakeChatModel{err: errBackend}), nil)
	assert.Equal(t, []string{"q"}, planner.Plan(context.Background(), "q", nil, multiQueryConfig(3)))

	garbage := NewQueryPlanner(SingleChatModel(&fakeChatModel{reply: "not json at all"}), nil)
	assert.Equal(t, []string{"q"}, garbage.Plan(context.Background(), "q", nil, multiQueryConfig(3)))
}

func TestPlanContextualRewriteUsesRecentHistory(t *testing.T) {
	model := &fakeChatModel{reply: "  revenue of Acme in 2023  "}
	planner := NewQueryPlanner(SingleChatModel(model), nil)
	cfg := domain.DefaultRetrievalConfig()
	cfg.ContextualRewrite = true

	history := []domain.ChatMessage{
		{Role: "user", Content: "old-1"},
		{Role: "assistant", Content: "old-2"},
		{Role: "user", Content: "Tell me about Acme"},
		{Role: "assistant", Content: strings.Repeat("a", 300)},
		{Role: "user", Content: "Focus on 2023"},
		{Role: "assistant", Content: "Sure"},
	}

	queries := planner.Plan(context.Background(), "what was the revenue?", history, cfg)

	require.Equal(t, []string{"revenue of Acme in 2023"}, queries)
	user := model.generated[0][1].Content
	assert.NotContains(t, user, "old-1")
	assert.NotContains(t, user, "old-2")
	assert.Contains(t, user, "user: Tell me about Acme\n")
	assert.Contains(t, user, "assistant: "+strings.Repeat("a", 200)+"\n")
	assert.NotContains(t, user, strings.Repeat("a", 201))
	assert.True(t, strings.HasSuffix(user, "\n\nQuery: what was the revenue?"))
}

func TestPlanRewriteFailureKeepsQuery(t *testing.T) {
	planner := NewQueryPlanner(SingleChatModel(&fakeChatModel{err: errBackend}), nil)
	cfg := domain.DefaultRetrievalConfig()
	cfg.ContextualRewrite = true

	got := planner.Plan(context.Background(), "q", []domain.ChatMessage{{Role: "user", Content: "hi"}}, cfg)
	assert.Equal(t, []string{"q"}, got)
}
