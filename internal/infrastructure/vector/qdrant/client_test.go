package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

func TestSearchByEmbeddingFiltersDocumentsAndMapsPayload(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.92,"payload":{"chunk_id":"c1","document_id":"d1","content":"alpha","page_number":4,"original_content":{"text":"alpha","images":["aW1n"]}}},
			{"id":7,"score":0.61,"payload":{"document_id":"d2","content":"beta"}}
		]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Collection: "chunks", DenseVector: "dense"})
	got, err := client.SearchByEmbedding(context.Background(), []float32{0.1, 0.2}, []string{"d1", "d2"}, 0.3, 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, []string{"aW1n"}, got[0].OriginalContent.Images)
	require.NotNil(t, got[0].PageNumber)
	assert.Equal(t, 4, *got[0].PageNumber)
	assert.Equal(t, "7", got[1].ID)
	assert.Equal(t, 1, got[1].Rank)

	assert.Equal(t, 0.3, body["score_threshold"])
	vector := body["vector"].(map[string]any)
	assert.Equal(t, "dense", vector["name"])
	must := body["filter"].(map[string]any)["must"].([]any)
	match := must[0].(map[string]any)["match"].(map[string]any)
	assert.Equal(t, []any{"d1", "d2"}, match["any"])
}

func TestSearchKeywordUsesSparseVector(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":3.2,"payload":{"chunk_id":"c1","document_id":"d1","content":"revenue"}}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Collection: "chunks", SparseVector: "text"})
	got, err := client.SearchKeyword(context.Background(), "revenue growth", []string{"d1"}, 5)

	require.NoError(t, err)
	require.Len(t, got, 1)
	vector := body["vector"].(map[string]any)
	assert.Equal(t, "text", vector["name"])
	sparse := vector["vector"].(map[string]any)
	assert.Len(t, sparse["indices"], 2)
}

func TestSearchKeywordDisabledWithoutSparseVector(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Collection: "chunks"})
	got, err := client.SearchKeyword(context.Background(), "revenue", []string{"d1"}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Collection: "chunks"})
	_, err := client.SearchByEmbedding(context.Background(), []float32{1}, []string{"d1"}, 0, 3)

	var statusErr *resilience.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "collection missing")
}
