package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client for an Ollama server. A nil executor disables retries.
func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Images    []string       `json:"images,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// ChatModel talks to /api/chat.
type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) Generate(ctx context.Context, messages []domain.LLMMessage) (string, error) {
	resp, err := m.chat(ctx, chatRequest{Messages: toChatMessages(messages)}, "chat")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

func (m *ChatModel) GenerateWithTools(ctx context.Context, messages []domain.LLMMessage, tools []domain.ToolSpec) (*domain.ModelReply, error) {
	resp, err := m.chat(ctx, chatRequest{Messages: toChatMessages(messages), Tools: toChatTools(tools)}, "chat_tools")
	if err != nil {
		return nil, err
	}

	reply := &domain.ModelReply{Content: strings.TrimSpace(resp.Message.Content)}
	for _, call := range resp.Message.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolInvocation{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return reply, nil
}

func (m *ChatModel) chat(ctx context.Context, req chatRequest, operation string) (*chatResponse, error) {
	req.Model = m.client.chatModel
	req.Stream = false

	var resp chatResponse
	err := m.client.executor.Execute(ctx, resilience.ClassGenerate, operation, func(callCtx context.Context) error {
		resp = chatResponse{}
		return m.client.postJSON(callCtx, "/api/chat", req, &resp, operation)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyHTTPError)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama %s: %s", operation, resp.Error)
	}
	return &resp, nil
}

// Stream reads the NDJSON body of a streaming /api/chat call. Only the
// connection attempt is retried; once tokens flow a failure is returned.
func (m *ChatModel) Stream(ctx context.Context, messages []domain.LLMMessage, onToken func(string) error) error {
	req := chatRequest{
		Model:    m.client.chatModel,
		Messages: toChatMessages(messages),
		Stream:   true,
	}

	var body *http.Response
	err := m.client.executor.Execute(ctx, resilience.ClassGenerate, "chat_stream", func(callCtx context.Context) error {
		resp, err := m.client.send(callCtx, "/api/chat", req, "chat_stream")
		if err != nil {
			return err
		}
		body = resp
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporary("ollama chat_stream", err, resilience.ClassifyHTTPError)
	}
	defer body.Body.Close()

	return readNDJSON(body.Body, func(line []byte) (bool, error) {
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return false, fmt.Errorf("decode chat_stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return false, fmt.Errorf("ollama chat_stream: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			if err := onToken(chunk.Message.Content); err != nil {
				return false, err
			}
		}
		return chunk.Done, nil
	})
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

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, resilience.ClassEmbed, "embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, resilience.ClassifyHTTPError)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func toChatMessages(messages []domain.LLMMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, chatMessage{Role: msg.Role, Content: msg.Content, Images: msg.Images})
	}
	return out
}

func toChatTools(tools []domain.ToolSpec) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}
