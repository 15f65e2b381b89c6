package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "rag:", ttl, nil), mr
}

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(len(text)), 0.5}, nil
}

type countingSearcher struct {
	calls int
	err   error
}

func (s *countingSearcher) Search(_ context.Context, query string, _ int) (*domain.WebSearchResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.WebSearchResponse{Answer: "a:" + query, Results: []domain.WebSearchHit{{URL: "https://x", Title: "X"}}}, nil
}

func TestCachedEmbedderHitsRedisOnSecondCall(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, c, "text-embedding-3-small")

	first, err := emb.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	second, err := emb.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, time.Minute, mr.TTL(mr.Keys()[0]))
}

func TestCachedEmbedderExpires(t *testing.T) {
	c, mr := newTestCache(t, time.Second)
	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, c, "m")

	_, _ = emb.EmbedQuery(context.Background(), "hello")
	mr.FastForward(2 * time.Second)
	_, _ = emb.EmbedQuery(context.Background(), "hello")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedWebSearcherNormalizesQueryAndSkipsErrors(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	inner := &countingSearcher{}
	s := NewCachedWebSearcher(inner, c)

	r1, err := s.Search(context.Background(), "Go News", 3)
	require.NoError(t, err)
	r2, err := s.Search(context.Background(), "  go news ", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, r1.Results, r2.Results)

	failing := &countingSearcher{err: domain.ErrTemporary}
	fs := NewCachedWebSearcher(failing, c)
	_, err = fs.Search(context.Background(), "other", 3)
	require.Error(t, err)
	_, _ = fs.Search(context.Background(), "other", 3)
	assert.Equal(t, 2, failing.calls)
}

func TestCacheTreatsOutageAsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()
	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, c, "m")

	vec, err := emb.EmbedQuery(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0.5}, vec)
}
