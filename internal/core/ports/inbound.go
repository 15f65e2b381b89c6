package ports

import (
	"context"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

// ChatAnswerer is the inbound contract for answering one chat turn.
type ChatAnswerer interface {
	Answer(ctx context.Context, req domain.AgentRequest) (*domain.AgentResult, error)
	// AnswerStream returns a channel of events that is closed after the
	// final done event or when ctx is cancelled.
	AnswerStream(ctx context.Context, req domain.AgentRequest) (<-chan domain.StreamEvent, error)
}
