package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"log"
	"sort"

	"plantboard/api/internal/render"
)

// ImageFetcher retrieves rendered diagram bytes for embedding in the
// export document.
type ImageFetcher interface {
	Fetch(ctx context.Context, code string, format render.Format) ([]byte, error)
}

// Service turns a diagram and its comments into a downloadable PDF.
type Service struct {
	images ImageFetcher
}

func NewService(images ImageFetcher) *Service {
	return &Service{images: images}
}

// ExportPDF renders the diagram page: embedded image, source code,
// pending comments first, then resolved comments grouped by version.
func (s *Service) ExportPDF(ctx context.Context, diagram Diagram, comments []Comment) (*Result, error) {
	data := TemplateData{
		Name:      diagram.Name,
		Version:   diagram.Version,
		UpdatedAt: diagram.UpdatedAt,
		Code:      diagram.Code,
	}

	// The image is decoration: export still works when rendering fails.
	if diagram.Code != "" && s.images != nil {
		if png, err := s.images.Fetch(ctx, diagram.Code, render.FormatPNG); err == nil {
			data.ImageDataURL = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
		} else {
			log.Printf("export: fetch image for diagram %s: %v", diagram.ID, err)
		}
	}

	groups := map[int][]TemplateComment{}
	for _, item := range comments {
		view := TemplateComment{
			Text:         item.Text,
			Author:       item.Author,
			Lines:        fmt.Sprintf("%d-%d", item.StartLine, item.EndLine),
			CodeSnapshot: item.CodeSnapshot,
			CreatedAt:    item.CreatedAt,
		}
		if view.Author == "" {
			view.Author = "Anonyme"
		}
		if !item.Processed || item.ProcessedInVersion == nil {
			data.Pending = append(data.Pending, view)
			continue
		}
		groups[*item.ProcessedInVersion] = append(groups[*item.ProcessedInVersion], view)
	}

	numbers := make([]int, 0, len(groups))
	for number := range groups {
		numbers = append(numbers, number)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))
	for _, number := range numbers {
		data.VersionGroups = append(data.VersionGroups, TemplateVersionGroup{
			Label:    fmt.Sprintf("v%d", number),
			Comments: groups[number],
		})
	}

	html, err := RenderDiagramHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return exportPDF(html, diagram.Name)
}
