package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL    string
	Collection string
	// DenseVector names the dense vector of the collection; empty means the
	// collection has a single unnamed vector.
	DenseVector string
	// SparseVector enables keyword search over a named sparse vector.
	SparseVector string
}

// Client searches an existing Qdrant collection of document chunks. Point
// payloads carry chunk_id, document_id, content, original_content and
// page_number.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// KeywordEnabled reports whether the collection carries a sparse vector.
func (c *Client) KeywordEnabled() bool {
	return c.cfg.SparseVector != ""
}

func (c *Client) SearchByEmbedding(ctx context.Context, embedding []float32, documentIDs []string, threshold float64, limit int) ([]domain.ScoredFragment, error) {
	if len(documentIDs) == 0 || len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}
	var vector any = embedding
	if c.cfg.DenseVector != "" {
		vector = map[string]any{"name": c.cfg.DenseVector, "vector": embedding}
	}
	reqBody := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
		"filter":          documentFilter(documentIDs),
	}
	return c.search(ctx, reqBody, "search")
}

func (c *Client) SearchKeyword(ctx context.Context, queryText string, documentIDs []string, limit int) ([]domain.ScoredFragment, error) {
	if !c.KeywordEnabled() || len(documentIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       map[string]any{"name": c.cfg.SparseVector, "vector": sparse},
		"limit":        limit,
		"with_payload": true,
		"filter":       documentFilter(documentIDs),
	}
	return c.search(ctx, reqBody, "sparse_search")
}

func (c *Client) search(ctx context.Context, reqBody map[string]any, operation string) ([]domain.ScoredFragment, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("qdrant", operation, resp)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}

	out := make([]domain.ScoredFragment, 0, len(searchResp.Result))
	for i, r := range searchResp.Result {
		frag := domain.ScoredFragment{
			ID:             getStringPayload(r.Payload, "chunk_id"),
			DocumentID:     getStringPayload(r.Payload, "document_id"),
			Content:        getStringPayload(r.Payload, "content"),
			PageNumber:     getIntPayload(r.Payload, "page_number"),
			RelevanceScore: r.Score,
			Rank:           i,
		}
		if frag.ID == "" && r.ID != nil {
			frag.ID = fmt.Sprintf("%v", r.ID)
		}
		if raw, ok := r.Payload["original_content"]; ok && raw != nil {
			if err := remarshal(raw, &frag.OriginalContent); err != nil {
				return nil, fmt.Errorf("decode original_content of %s: %w", frag.ID, err)
			}
		}
		out = append(out, frag)
	}
	return out, nil
}

func documentFilter(documentIDs []string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "document_id",
				"match": map[string]any{"any": documentIDs},
			},
		},
	}
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) *int {
	v, ok := payload[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}
