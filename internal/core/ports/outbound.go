package ports

import (
	"context"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs similarity search restricted to a set of documents.
// Results are ordered by descending similarity.
type VectorSearcher interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, documentIDs []string, threshold float64, limit int) ([]domain.ScoredFragment, error)
}

// KeywordSearcher runs full-text search restricted to a set of documents.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, queryText string, documentIDs []string, limit int) ([]domain.ScoredFragment, error)
}

// FilenameResolver resolves document ids to filenames in one batch.
type FilenameResolver interface {
	FilenamesByIDs(ctx context.Context, documentIDs []string) (map[string]string, error)
}

// ChatModel is a chat-completion provider.
type ChatModel interface {
	Generate(ctx context.Context, messages []domain.LLMMessage) (string, error)
	GenerateWithTools(ctx context.Context, messages []domain.LLMMessage, tools []domain.ToolSpec) (*domain.ModelReply, error)
	// Stream calls onToken for every content delta in order. A non-nil error
	// from onToken stops the stream and is returned.
	Stream(ctx context.Context, messages []domain.LLMMessage, onToken func(string) error) error
}

// ToolProposer lets the model pick between calling the web-search tool and
// answering directly. A nil invocation means the direct text is the answer.
type ToolProposer interface {
	ProposeToolCall(ctx context.Context, query string) (*domain.ToolInvocation, string, error)
}

// WebSearcher queries an external web search API.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) (*domain.WebSearchResponse, error)
}

// ConversationStore persists chat turns.
type ConversationStore interface {
	ListRecentMessages(ctx context.Context, chatID string, limit int) ([]domain.StoredMessage, error)
	AppendMessage(ctx context.Context, message domain.StoredMessage) error
}
