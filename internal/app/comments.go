package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"plantboard/api/internal/events"
	"plantboard/api/internal/store"
	"plantboard/api/internal/util"
)

type CommentView struct {
	ID                 string    `json:"id"`
	Text               string    `json:"text"`
	StartLine          int       `json:"startLine"`
	EndLine            int       `json:"endLine"`
	CodeSnapshot       string    `json:"codeSnapshot"`
	Author             *string   `json:"author"`
	Processed          bool      `json:"processed"`
	ProcessedInVersion *int      `json:"processedInVersion"`
	CreatedAt          time.Time `json:"createdAt"`
}

type CommentList struct {
	Comments []CommentView `json:"comments"`
}

// GroupedComments splits review comments for display: unresolved ones
// first, the rest keyed by the version they were resolved in ("v3").
type GroupedComments struct {
	Pending   []CommentView            `json:"pending"`
	ByVersion map[string][]CommentView `json:"byVersion"`
}

type CreateCommentInput struct {
	Text      string  `json:"text"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Author    *string `json:"author"`
}

type ProcessedResult struct {
	Success bool         `json:"success"`
	Comment *CommentView `json:"comment"`
	Message string       `json:"message"`
}

func commentView(item store.Comment) CommentView {
	return CommentView{
		ID:                 item.ID,
		Text:               item.Text,
		StartLine:          item.StartLine,
		EndLine:            item.EndLine,
		CodeSnapshot:       item.CodeSnapshot,
		Author:             item.Author,
		Processed:          item.Processed,
		ProcessedInVersion: item.ProcessedInVersion,
		CreatedAt:          item.CreatedAt,
	}
}

// CreateComment attaches a line-range annotation to a diagram. The
// referenced lines are snapshotted from the current code and stay frozen
// no matter how the diagram changes later.
func (s *Service) CreateComment(ctx context.Context, diagramID string, input CreateCommentInput) (CommentView, error) {
	if strings.TrimSpace(input.Text) == "" {
		return CommentView{}, invalid("comment text is required")
	}
	if input.StartLine < 1 {
		return CommentView{}, invalid("startLine must be at least 1")
	}
	if input.EndLine < input.StartLine {
		return CommentView{}, invalid("endLine must not precede startLine")
	}

	diagram, err := s.store.GetDiagram(ctx, diagramID)
	if errors.Is(err, sql.ErrNoRows) {
		return CommentView{}, notFound(fmt.Sprintf("Diagram %s not found", diagramID))
	}
	if err != nil {
		return CommentView{}, fmt.Errorf("get diagram: %w", err)
	}

	created, err := s.store.InsertComment(ctx, store.Comment{
		ID:           util.NewID(),
		DiagramID:    diagramID,
		Text:         input.Text,
		StartLine:    input.StartLine,
		EndLine:      input.EndLine,
		CodeSnapshot: snapshotLines(diagram.CurrentCode, input.StartLine, input.EndLine),
		Author:       input.Author,
	})
	if err != nil {
		return CommentView{}, err
	}
	return commentView(created), nil
}

// snapshotLines extracts the 1-based inclusive range [start, end] from
// code. Ranges beyond the available lines yield whatever subset exists.
func snapshotLines(code string, start, end int) string {
	lines := strings.Split(code, "\n")
	if start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n")
}

func (s *Service) ListComments(ctx context.Context, diagramID string) (CommentList, error) {
	comments, err := s.store.ListComments(ctx, diagramID, false)
	if err != nil {
		return CommentList{}, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, item := range comments {
		views = append(views, commentView(item))
	}
	return CommentList{Comments: views}, nil
}

func (s *Service) CommentsByVersion(ctx context.Context, diagramID string) (GroupedComments, error) {
	comments, err := s.store.ListComments(ctx, diagramID, true)
	if err != nil {
		return GroupedComments{}, err
	}

	grouped := GroupedComments{
		Pending:   []CommentView{},
		ByVersion: map[string][]CommentView{},
	}
	for _, item := range comments {
		view := commentView(item)
		if !item.Processed || item.ProcessedInVersion == nil {
			grouped.Pending = append(grouped.Pending, view)
			continue
		}
		key := fmt.Sprintf("v%d", *item.ProcessedInVersion)
		grouped.ByVersion[key] = append(grouped.ByVersion[key], view)
	}
	return grouped, nil
}

// MarkCommentProcessed resolves a comment, stamping the diagram's current
// version at this exact moment. A missing comment is a soft failure, not
// an error: resolving something already gone is nothing to do.
func (s *Service) MarkCommentProcessed(ctx context.Context, diagramID, commentID string) (ProcessedResult, error) {
	diagram, err := s.store.GetDiagram(ctx, diagramID)
	if errors.Is(err, sql.ErrNoRows) {
		return ProcessedResult{Success: false, Message: "Comment not found"}, nil
	}
	if err != nil {
		return ProcessedResult{}, fmt.Errorf("get diagram: %w", err)
	}

	updated, found, err := s.store.MarkCommentProcessed(ctx, diagramID, commentID, diagram.CurrentVersion)
	if err != nil {
		return ProcessedResult{}, err
	}
	if !found {
		return ProcessedResult{Success: false, Message: "Comment not found"}, nil
	}

	s.bus.Publish(events.Event{DiagramID: diagramID, Version: diagram.CurrentVersion, Kind: events.KindComment})

	view := commentView(updated)
	return ProcessedResult{Success: true, Comment: &view, Message: "Comment marked as processed"}, nil
}

func (s *Service) DeleteComment(ctx context.Context, diagramID, commentID string) (MutationResult, error) {
	deleted, err := s.store.DeleteComment(ctx, diagramID, commentID)
	if err != nil {
		return MutationResult{}, err
	}
	if deleted {
		return MutationResult{Success: true, Message: "Comment deleted"}, nil
	}
	return MutationResult{Success: false, Message: "Comment not found"}, nil
}

func (s *Service) ClearComments(ctx context.Context, diagramID string) (MutationResult, error) {
	if err := s.store.DeleteComments(ctx, diagramID); err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Success: true, Message: "All comments cleared"}, nil
}
