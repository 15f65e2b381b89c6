package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const emptyAnswerText = "I couldn't process that request."

// ChatService loads conversation history and records each turn around an
// inner answerer. Without a chat id or store it is a pass-through.
type ChatService struct {
	inner        ports.ChatAnswerer
	store        ports.ConversationStore
	historyLimit int
	logger       *zap.Logger
}

func NewChatService(inner ports.ChatAnswerer, store ports.ConversationStore, historyLimit int, logger *zap.Logger) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{inner: inner, store: store, historyLimit: historyLimit, logger: logger}
}

func (s *ChatService) Answer(ctx context.Context, req domain.AgentRequest) (*domain.AgentResult, error) {
	req, err := s.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.inner.Answer(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.persisting(req) {
		content := result.Response
		if strings.TrimSpace(content) == "" {
			content = emptyAnswerText
		}
		msg := assistantMessage(req.ChatID, content, result.Citations, result.WebSources)
		msg.Blocked = result.Blocked
		if msg.Blocked {
			msg.Citations = []domain.Citation{}
			msg.WebSources = []domain.WebSource{}
		}
		if err := s.store.AppendMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("append assistant message: %w", err)
		}
	}
	return result, nil
}

func (s *ChatService) AnswerStream(ctx context.Context, req domain.AgentRequest) (<-chan domain.StreamEvent, error) {
	req, err := s.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	inner, err := s.inner.AnswerStream(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.persisting(req) {
		return inner, nil
	}

	out := make(chan domain.StreamEvent, streamBuffer)
	go func() {
		defer close(out)

		rec := &turnRecorder{}
		forward := func(ev domain.StreamEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		for ev := range inner {
			rec.observe(ev)
			if ev.Type == domain.EventDone {
				s.record(ctx, req.ChatID, rec)
			}
			forward(ev)
		}
		if !rec.done {
			// consumer disconnected mid-stream; keep what was delivered
			s.record(ctx, req.ChatID, rec)
		}
	}()
	return out, nil
}

func (s *ChatService) persisting(req domain.AgentRequest) bool {
	return s.store != nil && strings.TrimSpace(req.ChatID) != ""
}

// beginTurn fills history from the store when the caller sent none and
// records the user message.
func (s *ChatService) beginTurn(ctx context.Context, req domain.AgentRequest) (domain.AgentRequest, error) {
	if strings.TrimSpace(req.Query) == "" {
		return req, domain.WrapError(domain.ErrInvalidInput, "chat turn", fmt.Errorf("query is required"))
	}
	if !s.persisting(req) {
		return req, nil
	}

	if len(req.ChatHistory) == 0 {
		stored, err := s.store.ListRecentMessages(ctx, req.ChatID, s.historyLimit)
		if err != nil {
			return req, fmt.Errorf("load chat history: %w", err)
		}
		history := make([]domain.ChatMessage, 0, len(stored))
		for _, m := range stored {
			history = append(history, domain.ChatMessage{Role: m.Role, Content: m.Content})
		}
		req.ChatHistory = history
	}

	if err := s.store.AppendMessage(ctx, domain.StoredMessage{
		ID:        uuid.NewString(),
		ChatID:    req.ChatID,
		Role:      domain.RoleUser,
		Content:   req.Query,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return req, fmt.Errorf("append user message: %w", err)
	}
	return req, nil
}

func (s *ChatService) record(ctx context.Context, chatID string, rec *turnRecorder) {
	if rec.recorded {
		return
	}
	rec.recorded = true

	msg := rec.message(chatID)
	// the request context may already be cancelled by a disconnect
	if err := s.store.AppendMessage(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Error("append assistant message failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// turnRecorder rebuilds the delivered answer from stream events.
type turnRecorder struct {
	text       strings.Builder
	citations  []domain.Citation
	webSources []domain.WebSource
	blocked    string
	done       bool
	recorded   bool
}

func (r *turnRecorder) observe(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventToken:
		if s, ok := ev.Content.(string); ok {
			r.text.WriteString(s)
		}
	case domain.EventCitations:
		if c, ok := ev.Content.([]domain.Citation); ok {
			r.citations = c
		}
	case domain.EventWebSources:
		if w, ok := ev.Content.([]domain.WebSource); ok {
			r.webSources = w
		}
	case domain.EventGuardrailBlocked:
		if s, ok := ev.Content.(string); ok {
			r.blocked = s
		}
	case domain.EventDone:
		r.done = true
	}
}

func (r *turnRecorder) message(chatID string) domain.StoredMessage {
	if r.blocked != "" {
		msg := assistantMessage(chatID, r.blocked, nil, nil)
		msg.Blocked = true
		return msg
	}
	text := r.text.String()
	if strings.TrimSpace(text) == "" {
		text = emptyAnswerText
	}
	msg := assistantMessage(chatID, text, r.citations, r.webSources)
	msg.Partial = !r.done
	return msg
}

func assistantMessage(chatID, content string, citations []domain.Citation, sources []domain.WebSource) domain.StoredMessage {
	if citations == nil {
		citations = []domain.Citation{}
	}
	if sources == nil {
		sources = []domain.WebSource{}
	}
	return domain.StoredMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Role:       domain.RoleAssistant,
		Content:    content,
		Citations:  citations,
		WebSources: sources,
		CreatedAt:  time.Now().UTC(),
	}
}
