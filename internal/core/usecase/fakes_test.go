package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeVectorSearcher struct {
	mu         sync.Mutex
	calls      int
	thresholds []float64
	results    []domain.ScoredFragment
	byQuery    map[float32][]domain.ScoredFragment
	err        error
}

func (f *fakeVectorSearcher) SearchByEmbedding(_ context.Context, embedding []float32, _ []string, threshold float64, limit int) ([]domain.ScoredFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.thresholds = append(f.thresholds, threshold)
	if f.err != nil {
		return nil, f.err
	}
	results := f.results
	if f.byQuery != nil && len(embedding) > 0 {
		if r, ok := f.byQuery[embedding[0]]; ok {
			results = r
		}
	}
	out := append([]domain.ScoredFragment(nil), results...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeKeywordSearcher struct {
	mu      sync.Mutex
	calls   int
	results []domain.ScoredFragment
	err     error
}

func (f *fakeKeywordSearcher) SearchKeyword(_ context.Context, _ string, _ []string, _ int) ([]domain.ScoredFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.ScoredFragment(nil), f.results...), nil
}

type fakeFilenames struct {
	calls [][]string
	names map[string]string
	err   error
}

func (f *fakeFilenames) FilenamesByIDs(_ context.Context, ids []string) (map[string]string, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

// fakeChatModel answers Generate with a fixed reply and streams it in
// whitespace-separated tokens.
type fakeChatModel struct {
	mu        sync.Mutex
	reply     string
	toolReply *domain.ModelReply
	err       error
	toolErr   error
	generated [][]domain.LLMMessage
	streamed  [][]domain.LLMMessage
	toolCalls int
}

func (f *fakeChatModel) Generate(_ context.Context, messages []domain.LLMMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatModel) GenerateWithTools(_ context.Context, _ []domain.LLMMessage, _ []domain.ToolSpec) (*domain.ModelReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolCalls++
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	if f.toolReply == nil {
		return &domain.ModelReply{}, nil
	}
	return f.toolReply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, messages []domain.LLMMessage, onToken func(string) error) error {
	f.mu.Lock()
	f.streamed = append(f.streamed, messages)
	reply, err := f.reply, f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for _, tok := range strings.SplitAfter(reply, " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

type fakeWebSearcher struct {
	calls   []string
	resp    *domain.WebSearchResponse
	err     error
	maxSeen int
}

func (f *fakeWebSearcher) Search(_ context.Context, query string, maxResults int) (*domain.WebSearchResponse, error) {
	f.calls = append(f.calls, query)
	f.maxSeen = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeStore struct {
	mu       sync.Mutex
	history  []domain.StoredMessage
	appended []domain.StoredMessage
	err      error
}

func (f *fakeStore) ListRecentMessages(_ context.Context, _ string, _ int) ([]domain.StoredMessage, error) {
	return f.history, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, m domain.StoredMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, m)
	return nil
}

func (f *fakeStore) messages() []domain.StoredMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StoredMessage(nil), f.appended...)
}

var errBackend = errors.New("backend down")

func collect(ch <-chan domain.StreamEvent) []domain.StreamEvent {
	var out []domain.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []domain.StreamEvent) []domain.StreamEventType {
	out := make([]domain.StreamEventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func tokenText(events []domain.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == domain.EventToken {
			b.WriteString(ev.Content.(string))
		}
	}
	return b.String()
}

func ptr[T any](v T) *T { return &v }
