package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback. The 'french' configuration matches the FTS index migration.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) SearchIDs(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	rows, err := p.db.Query(`
		SELECT id
		FROM diagrams
		WHERE to_tsvector('french', name || ' ' || current_code) @@ plainto_tsquery('french', $1)
		ORDER BY ts_rank(to_tsvector('french', name || ' ' || current_code), plainto_tsquery('french', $1)) DESC
		LIMIT $2
	`, text, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgfts iterate: %w", err)
	}
	return ids, nil
}

// LoadAllRecords reads every diagram for bulk reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DiagramRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, current_code FROM diagrams`)
	if err != nil {
		return nil, fmt.Errorf("load diagram records: %w", err)
	}
	defer rows.Close()

	records := make([]DiagramRecord, 0)
	for rows.Next() {
		var record DiagramRecord
		if err := rows.Scan(&record.ID, &record.Name, &record.Code); err != nil {
			return nil, fmt.Errorf("scan diagram record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagram records: %w", err)
	}
	return records, nil
}
