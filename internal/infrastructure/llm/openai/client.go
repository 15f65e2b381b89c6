package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
}

// Client holds one openai-go client shared by the chat model and embedder.
// Retries belong to the resilience executor, so the SDK's own are disabled.
type Client struct {
	sdk        openai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
	logger     *zap.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		sdk:        openai.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		executor:   executor,
		logger:     logger,
	}
}

type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) Generate(ctx context.Context, messages []domain.LLMMessage) (string, error) {
	resp, err := m.complete(ctx, "chat", m.params(messages, nil))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (m *ChatModel) GenerateWithTools(ctx context.Context, messages []domain.LLMMessage, tools []domain.ToolSpec) (*domain.ModelReply, error) {
	resp, err := m.complete(ctx, "chat_tools", m.params(messages, tools))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat_tools: empty choices")
	}

	msg := resp.Choices[0].Message
	reply := &domain.ModelReply{Content: strings.TrimSpace(msg.Content)}
	for _, call := range msg.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				m.client.logger.Warn("tool_arguments_invalid",
					zap.String("tool", call.Function.Name),
					zap.Error(err),
				)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolInvocation{
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return reply, nil
}

func (m *ChatModel) complete(ctx context.Context, operation string, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var resp *openai.ChatCompletion
	err := m.client.executor.Execute(ctx, resilience.ClassGenerate, operation, func(callCtx context.Context) error {
		out, err := m.client.sdk.Chat.Completions.New(callCtx, params)
		if err != nil {
			return toStatusError(operation, err)
		}
		resp = out
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai "+operation, err, resilience.ClassifyHTTPError)
	}
	return resp, nil
}

// Stream is not retried: the SDK only surfaces a connection failure after
// the first Next call, and a partially delivered answer cannot be replayed.
func (m *ChatModel) Stream(ctx context.Context, messages []domain.LLMMessage, onToken func(string) error) error {
	stream := m.client.sdk.Chat.Completions.NewStreaming(ctx, m.params(messages, nil))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onToken(delta); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return resilience.WrapTemporary("openai chat_stream", toStatusError("chat_stream", err), resilience.ClassifyHTTPError)
	}
	return nil
}

func (m *ChatModel) params(messages []domain.LLMMessage, tools []domain.ToolSpec) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.client.chatModel),
		Messages: toMessageParams(messages),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}
	return params
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.client.embedModel),
	}
	var resp *openai.CreateEmbeddingResponse
	err := e.client.executor.Execute(ctx, resilience.ClassEmbed, "embed", func(callCtx context.Context) error {
		out, err := e.client.sdk.Embeddings.New(callCtx, params)
		if err != nil {
			return toStatusError("embed", err)
		}
		resp = out
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai embed", err, resilience.ClassifyHTTPError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// toStatusError turns an SDK API error into the shared status error so the
// resilience classifier can see the HTTP code.
func toStatusError(operation string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusErr := &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: apiErr.StatusCode,
			Status:     http.StatusText(apiErr.StatusCode),
			Body:       apiErr.Message,
		}
		if apiErr.Response != nil {
			statusErr.RetryAfter = resilience.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return statusErr
	}
	return err
}
