package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentRepository reads document metadata needed for citations.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// FilenamesByIDs resolves all ids in one round trip. Unknown ids are absent
// from the map.
func (r *DocumentRepository) FilenamesByIDs(ctx context.Context, documentIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, filename
FROM documents
WHERE id = ANY($1)
`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("list document filenames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, filename string
		if err := rows.Scan(&id, &filename); err != nil {
			return nil, fmt.Errorf("scan document filename: %w", err)
		}
		out[id] = filename
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document filenames: %w", err)
	}
	return out, nil
}
