package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const diagramColumns = `id, name, current_code, current_version, thumbnail, created_at, updated_at`

func (s *PostgresStore) GetDiagram(ctx context.Context, id string) (Diagram, error) {
	var item Diagram
	err := s.db.QueryRowContext(ctx, `
		SELECT `+diagramColumns+`
		FROM diagrams
		WHERE id=$1
	`, id).Scan(&item.ID, &item.Name, &item.CurrentCode, &item.CurrentVersion, &item.Thumbnail, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Diagram{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDiagram(ctx context.Context, item Diagram) (Diagram, error) {
	var created Diagram
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO diagrams (id, name, current_code, current_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET id=EXCLUDED.id
		RETURNING `+diagramColumns+`
	`, item.ID, item.Name, item.CurrentCode, item.CurrentVersion).Scan(
		&created.ID, &created.Name, &created.CurrentCode, &created.CurrentVersion,
		&created.Thumbnail, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return Diagram{}, fmt.Errorf("insert diagram: %w", err)
	}
	return created, nil
}

// SaveHeadAndVersion commits a code update atomically: the head row moves
// to the new version and the matching version row is inserted in the same
// transaction, so a crash can never lose a version whose pointer advanced.
func (s *PostgresStore) SaveHeadAndVersion(ctx context.Context, diagram Diagram, version Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE diagrams
		SET name=$2, current_code=$3, current_version=$4, thumbnail=$5, updated_at=NOW()
		WHERE id=$1
	`, diagram.ID, diagram.Name, diagram.CurrentCode, diagram.CurrentVersion, diagram.Thumbnail); err != nil {
		return fmt.Errorf("update diagram head: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO diagram_versions (id, diagram_id, version_number, code)
		VALUES ($1, $2, $3, $4)
	`, version.ID, version.DiagramID, version.VersionNumber, version.Code); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

// SaveHead rewrites the head row without touching version rows. Used by
// restore, which moves the pointer instead of appending history.
func (s *PostgresStore) SaveHead(ctx context.Context, diagram Diagram) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE diagrams
		SET name=$2, current_code=$3, current_version=$4, thumbnail=$5, updated_at=NOW()
		WHERE id=$1
	`, diagram.ID, diagram.Name, diagram.CurrentCode, diagram.CurrentVersion, diagram.Thumbnail)
	if err != nil {
		return fmt.Errorf("save diagram head: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameDiagram(ctx context.Context, id, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE diagrams SET name=$2, updated_at=NOW() WHERE id=$1
	`, id, name)
	if err != nil {
		return false, fmt.Errorf("rename diagram: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rename diagram rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteDiagram removes the head row; version and comment rows go with it
// via ON DELETE CASCADE.
func (s *PostgresStore) DeleteDiagram(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete diagram: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete diagram rows: %w", err)
	}
	return affected > 0, nil
}

const summarySelect = `
	SELECT d.id, d.name, d.current_code, d.current_version, d.thumbnail, d.created_at, d.updated_at,
		(SELECT COUNT(*) FROM diagram_versions v WHERE v.diagram_id = d.id) AS versions_count,
		(SELECT COUNT(*) FROM comments c WHERE c.diagram_id = d.id) AS comments_count
	FROM diagrams d
`

func (s *PostgresStore) ListDiagrams(ctx context.Context) ([]DiagramSummary, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect+` ORDER BY d.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	return scanSummaries(rows)
}

// ListDiagramsByIDs returns summaries for the given ids, most recently
// updated first. Used when an external search index supplies the match set.
func (s *PostgresStore) ListDiagramsByIDs(ctx context.Context, ids []string) ([]DiagramSummary, error) {
	if len(ids) == 0 {
		return []DiagramSummary{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := summarySelect + ` WHERE d.id IN (` + strings.Join(placeholders, ",") + `) ORDER BY d.updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list diagrams by ids: %w", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]DiagramSummary, error) {
	defer rows.Close()
	items := make([]DiagramSummary, 0)
	for rows.Next() {
		var item DiagramSummary
		if err := rows.Scan(
			&item.ID, &item.Name, &item.CurrentCode, &item.CurrentVersion,
			&item.Thumbnail, &item.CreatedAt, &item.UpdatedAt,
			&item.VersionsCount, &item.CommentsCount,
		); err != nil {
			return nil, fmt.Errorf("scan diagram summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagrams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, diagramID string, versionNumber int) (Version, error) {
	var item Version
	err := s.db.QueryRowContext(ctx, `
		SELECT id, diagram_id, version_number, code, created_at
		FROM diagram_versions
		WHERE diagram_id=$1 AND version_number=$2
	`, diagramID, versionNumber).Scan(&item.ID, &item.DiagramID, &item.VersionNumber, &item.Code, &item.CreatedAt)
	if err != nil {
		return Version{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, diagramID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, diagram_id, version_number, code, created_at
		FROM diagram_versions
		WHERE diagram_id=$1
		ORDER BY version_number DESC
	`, diagramID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		var item Version
		if err := rows.Scan(&item.ID, &item.DiagramID, &item.VersionNumber, &item.Code, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// DeleteVersionsThrough removes every version row numbered at or below
// maxNumber. Retention trimming computes the cutoff from the newest rows,
// so gaps left by earlier trims do not matter here.
func (s *PostgresStore) DeleteVersionsThrough(ctx context.Context, diagramID string, maxNumber int) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM diagram_versions WHERE diagram_id=$1 AND version_number <= $2
	`, diagramID, maxNumber)
	if err != nil {
		return 0, fmt.Errorf("trim versions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim versions rows: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (Comment, error) {
	var created Comment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, diagram_id, text, start_line, end_line, code_snapshot, author)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, diagram_id, text, start_line, end_line, code_snapshot, author, processed, processed_in_version, created_at
	`, item.ID, item.DiagramID, item.Text, item.StartLine, item.EndLine, item.CodeSnapshot, item.Author).Scan(
		&created.ID, &created.DiagramID, &created.Text, &created.StartLine, &created.EndLine,
		&created.CodeSnapshot, &created.Author, &created.Processed, &created.ProcessedInVersion, &created.CreatedAt,
	)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, diagramID string, newestFirst bool) ([]Comment, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, diagram_id, text, start_line, end_line, code_snapshot, author, processed, processed_in_version, created_at
		FROM comments
		WHERE diagram_id=$1
		ORDER BY created_at `+order, diagramID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(
			&item.ID, &item.DiagramID, &item.Text, &item.StartLine, &item.EndLine,
			&item.CodeSnapshot, &item.Author, &item.Processed, &item.ProcessedInVersion, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// MarkCommentProcessed stamps the resolving version exactly once: a comment
// that is already processed keeps its original processed_in_version.
func (s *PostgresStore) MarkCommentProcessed(ctx context.Context, diagramID, commentID string, version int) (Comment, bool, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		UPDATE comments
		SET processed = TRUE,
			processed_in_version = CASE WHEN processed THEN processed_in_version ELSE $3 END
		WHERE id=$2 AND diagram_id=$1
		RETURNING id, diagram_id, text, start_line, end_line, code_snapshot, author, processed, processed_in_version, created_at
	`, diagramID, commentID, version).Scan(
		&item.ID, &item.DiagramID, &item.Text, &item.StartLine, &item.EndLine,
		&item.CodeSnapshot, &item.Author, &item.Processed, &item.ProcessedInVersion, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, false, nil
	}
	if err != nil {
		return Comment{}, false, fmt.Errorf("mark comment processed: %w", err)
	}
	return item, true, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, diagramID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE id=$2 AND diagram_id=$1
	`, diagramID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteComments(ctx context.Context, diagramID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE diagram_id=$1`, diagramID); err != nil {
		return fmt.Errorf("clear comments: %w", err)
	}
	return nil
}
