package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

// ChunkRepository searches document_chunks with pgvector and Postgres
// full-text search. Both searches are scoped to the given documents.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const vectorSearchQuery = `
SELECT id, document_id, content, original_content, page_number,
	1 - (embedding <=> $1::vector) AS similarity
FROM document_chunks
WHERE document_id = ANY($2)
	AND 1 - (embedding <=> $1::vector) >= $3
ORDER BY embedding <=> $1::vector
LIMIT $4
`

const keywordSearchQuery = `
SELECT id, document_id, content, original_content, page_number,
	ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', $1)) AS rank
FROM document_chunks
WHERE document_id = ANY($2)
	AND to_tsvector('english', content) @@ plainto_tsquery('english', $1)
ORDER BY rank DESC, id
LIMIT $3
`

func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, documentIDs []string, threshold float64, limit int) ([]domain.ScoredFragment, error) {
	if len(documentIDs) == 0 || len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, vectorSearchQuery, vectorLiteral(embedding), documentIDs, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	return scanFragments(rows, "vector search")
}

func (r *ChunkRepository) SearchKeyword(ctx context.Context, queryText string, documentIDs []string, limit int) ([]domain.ScoredFragment, error) {
	if len(documentIDs) == 0 || queryText == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, keywordSearchQuery, queryText, documentIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanFragments(rows, "keyword search")
}

func scanFragments(rows *sql.Rows, operation string) ([]domain.ScoredFragment, error) {
	out := make([]domain.ScoredFragment, 0)
	for rows.Next() {
		var (
			frag     domain.ScoredFragment
			original []byte
			page     sql.NullInt64
		)
		if err := rows.Scan(&frag.ID, &frag.DocumentID, &frag.Content, &original, &page, &frag.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", operation, err)
		}
		if len(original) > 0 {
			if err := json.Unmarshal(original, &frag.OriginalContent); err != nil {
				return nil, fmt.Errorf("unmarshal original_content of %s: %w", frag.ID, err)
			}
		}
		if page.Valid {
			p := int(page.Int64)
			frag.PageNumber = &p
		}
		frag.Rank = len(out)
		out = append(out, frag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", operation, err)
	}
	return out, nil
}
