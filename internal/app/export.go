package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"plantboard/api/internal/export"
)

// ExportPDF builds the printable review document for a diagram.
func (s *Service) ExportPDF(ctx context.Context, diagramID string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}

	diagram, err := s.store.GetDiagram(ctx, diagramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(fmt.Sprintf("Diagram %s not found", diagramID))
	}
	if err != nil {
		return nil, fmt.Errorf("get diagram: %w", err)
	}

	comments, err := s.store.ListComments(ctx, diagramID, true)
	if err != nil {
		return nil, err
	}

	exportComments := make([]export.Comment, 0, len(comments))
	for _, item := range comments {
		author := ""
		if item.Author != nil {
			author = *item.Author
		}
		exportComments = append(exportComments, export.Comment{
			Text:               item.Text,
			StartLine:          item.StartLine,
			EndLine:            item.EndLine,
			CodeSnapshot:       item.CodeSnapshot,
			Author:             author,
			Processed:          item.Processed,
			ProcessedInVersion: item.ProcessedInVersion,
			CreatedAt:          item.CreatedAt,
		})
	}

	return s.export.ExportPDF(ctx, export.Diagram{
		ID:        diagram.ID,
		Name:      diagram.Name,
		Code:      diagram.CurrentCode,
		Version:   diagram.CurrentVersion,
		UpdatedAt: diagram.UpdatedAt,
	}, exportComments)
}
