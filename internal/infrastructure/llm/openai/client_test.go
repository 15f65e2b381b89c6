package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test", BaseURL: srv.URL, ChatModel: "gpt-4o-mini", EmbedModel: "text-embedding-3-small"}, nil, nil)
}

func completionJSON(message string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":%s}]}`, message)
}

func TestGenerateSendsImagesAsContentParts(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON(`{"role":"assistant","content":" answer "}`)))
	})

	got, err := NewChatModel(client).Generate(context.Background(), []domain.LLMMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleAssistant, Content: "prev"},
		{Role: domain.RoleUser, Content: "what is shown?", Images: []string{"aW1n"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "sys", msgs[0].(map[string]any)["content"])
	parts := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "what is shown?", parts[0].(map[string]any)["text"])
	imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"]
	assert.Equal(t, "data:image/jpeg;base64,aW1n", imageURL)
}

func TestGenerateWithToolsParsesArguments(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON(`{"role":"assistant","content":null,"tool_calls":[{"id":"t1","type":"function","function":{"name":"web_search","arguments":"{\"query\":\"weather in Oslo\"}"}}]}`)))
	})

	reply, err := NewChatModel(client).GenerateWithTools(context.Background(),
		[]domain.LLMMessage{{Role: domain.RoleUser, Content: "weather?"}},
		[]domain.ToolSpec{{Name: "web_search", Description: "Search the web", Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
		}}},
	)

	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "web_search", reply.ToolCalls[0].Name)
	assert.Equal(t, "weather in Oslo", reply.ToolCalls[0].StringArgument("query"))
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "web_search", fn["name"])
}

func TestStreamEmitsDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "lo", ""} {
			chunk := fmt.Sprintf(`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`, tok)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var tokens []string
	err := NewChatModel(client).Stream(context.Background(), []domain.LLMMessage{{Role: domain.RoleUser, Content: "hi"}}, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, tokens)
}

func TestGenerateMapsUnavailableToTemporary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := NewChatModel(client).Generate(context.Background(), []domain.LLMMessage{{Role: domain.RoleUser, Content: "hi"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTemporary))
}

func TestEmbedOrdersByIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0.3, 0.4}},
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2}},
			},
			"model": "text-embedding-3-small",
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	})

	vecs, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.1, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.3, vecs[1][0], 1e-6)
}
