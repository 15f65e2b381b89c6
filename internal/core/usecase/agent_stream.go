package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/guardrail"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const (
	streamBuffer          = 16
	directResponseChunk   = 24
	streamGenerationError = "Sorry, I couldn't generate a response. Please try again."
)

var errOutputBlocked = errors.New("output blocked by guardrail")

// AnswerStream runs the turn in a producer goroutine. The returned channel
// yields status, token and metadata events and ends with done. It is closed
// early, without done, when ctx is cancelled.
func (r *AgentRouter) AnswerStream(ctx context.Context, req domain.AgentRequest) (<-chan domain.StreamEvent, error) {
	st, variant, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamEvent, streamBuffer)
	go func() {
		defer close(out)

		sink := &streamSink{ctx: ctx, out: out, guard: r.guard, logger: r.logger}
		if err := r.run(ctx, st, variant, sink); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("stream turn failed", zap.Error(err))
			sink.Event(domain.StreamEvent{Type: domain.EventError, Content: streamGenerationError})
		}
		sink.Event(domain.StreamEvent{Type: domain.EventDone})
	}()
	return out, nil
}

// streamSink pushes events to a single consumer and enforces the output
// guardrail on the accumulated answer.
type streamSink struct {
	ctx    context.Context
	out    chan<- domain.StreamEvent
	guard  *guardrail.Engine
	logger *zap.Logger
}

func (s *streamSink) Status(text string) {
	s.Event(domain.StreamEvent{Type: domain.EventStatus, Content: text})
}

// Event returns without sending once the consumer has gone away.
func (s *streamSink) Event(ev domain.StreamEvent) {
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
	}
}

func (s *streamSink) Deliver(ctx context.Context, model ports.ChatModel, plan responsePlan) (string, error) {
	var answer strings.Builder

	emit := func(token string) error {
		if token == "" {
			return nil
		}
		candidate := answer.String() + token
		if v := s.guard.CheckOutput(candidate); v.Blocked() {
			s.logger.Warn("output guardrail blocked stream", zap.String("category", v.Category))
			s.Event(domain.StreamEvent{Type: domain.EventGuardrailBlocked, Content: v.Message, Category: v.Category})
			return errOutputBlocked
		}
		answer.WriteString(token)
		s.Event(domain.StreamEvent{Type: domain.EventToken, Content: token})
		return ctx.Err()
	}

	if plan.verbatim != "" {
		for _, part := range splitByRunes(plan.verbatim, directResponseChunk) {
			if err := emit(part); err != nil {
				return answer.String(), err
			}
		}
		return answer.String(), nil
	}

	err := model.Stream(ctx, plan.messages, emit)
	return answer.String(), err
}

func splitByRunes(text string, chunkChars int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}
	runes := []rune(text)
	if chunkChars <= 0 || len(runes) <= chunkChars {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/chunkChars+1)
	for start := 0; start < len(runes); start += chunkChars {
		end := start + chunkChars
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
