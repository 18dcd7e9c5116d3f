package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"plantboard/api/internal/config"
	"plantboard/api/internal/events"
	"plantboard/api/internal/export"
	"plantboard/api/internal/render"
	"plantboard/api/internal/search"
	"plantboard/api/internal/store"
	"plantboard/api/internal/util"
)

type dataStore interface {
	Ping(context.Context) error
	GetDiagram(context.Context, string) (store.Diagram, error)
	InsertDiagram(context.Context, store.Diagram) (store.Diagram, error)
	SaveHeadAndVersion(context.Context, store.Diagram, store.Version) error
	SaveHead(context.Context, store.Diagram) error
	RenameDiagram(context.Context, string, string) (bool, error)
	DeleteDiagram(context.Context, string) (bool, error)
	ListDiagrams(context.Context) ([]store.DiagramSummary, error)
	ListDiagramsByIDs(context.Context, []string) ([]store.DiagramSummary, error)
	GetVersion(context.Context, string, int) (store.Version, error)
	ListVersions(context.Context, string) ([]store.Version, error)
	DeleteVersionsThrough(context.Context, string, int) (int, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	ListComments(context.Context, string, bool) ([]store.Comment, error)
	MarkCommentProcessed(context.Context, string, string, int) (store.Comment, bool, error)
	DeleteComment(context.Context, string, string) (bool, error)
	DeleteComments(context.Context, string) error
}

// thumbnailer derives an inline preview from code; nil means "no preview
// could be produced" and is never an error.
type thumbnailer interface {
	Generate(ctx context.Context, code string) *string
}

type urlBuilder interface {
	ImageURL(code string, format render.Format) (string, error)
}

type searchIndex interface {
	SearchIDs(text string) ([]string, bool)
	IndexDiagram(doc search.DiagramRecord)
	DeleteDiagram(id string)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	render urlBuilder
	thumbs thumbnailer
	bus    *events.Bus
	search searchIndex
	export *export.Service
}

func New(cfg config.Config, dataStore dataStore, renderer urlBuilder, thumbs thumbnailer, bus *events.Bus, searchService searchIndex, exportService *export.Service) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		render: renderer,
		thumbs: thumbs,
		bus:    bus,
		search: searchService,
		export: exportService,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Subscribe attaches a live event stream for one diagram id.
func (s *Service) Subscribe(diagramID string) (<-chan events.Event, func()) {
	return s.bus.Subscribe(diagramID)
}

// ===== Views =====

type DiagramView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	ImageURL     *string   `json:"imageUrl"`
	SVGURL       *string   `json:"svgUrl"`
	PreviousCode *string   `json:"previousCode"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type DiagramListItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CurrentVersion int       `json:"currentVersion"`
	VersionsCount  int       `json:"versionsCount"`
	CommentsCount  int       `json:"commentsCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ImageURL       *string   `json:"imageUrl"`
}

type UpdateResult struct {
	Success      bool    `json:"success"`
	ID           string  `json:"id"`
	ImageURL     string  `json:"imageUrl"`
	SVGURL       string  `json:"svgUrl"`
	Code         string  `json:"code"`
	PreviousCode *string `json:"previousCode"`
	Version      int     `json:"version"`
}

type RestoreResult struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	SVGURL   string `json:"svgUrl"`
	Code     string `json:"code"`
	Version  int    `json:"version"`
}

type VersionView struct {
	ID            string    `json:"id"`
	VersionNumber int       `json:"versionNumber"`
	Code          string    `json:"code"`
	CreatedAt     time.Time `json:"createdAt"`
	IsCurrent     bool      `json:"isCurrent"`
}

type MutationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RenameResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

type RegenerateResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// ===== Diagram lifecycle =====

var titlePattern = regexp.MustCompile(`(?im)^[ \t]*title[ \t]+(.+)$`)

// extractTitle returns the first title directive in code, or "".
func extractTitle(code string) string {
	match := titlePattern.FindStringSubmatch(code)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// generateName builds the default display name from the creation moment.
// The format is fixed: the editor's audience expects DD/MM/YYYY.
func generateName(now time.Time) string {
	return "Diagramme " + now.Format("02/01/2006 15:04")
}

// ensureDiagram is the explicit idempotent upsert behind get-or-create
// and updateCode: a miss creates an empty head at version 0.
func (s *Service) ensureDiagram(ctx context.Context, id string) (store.Diagram, error) {
	diagram, err := s.store.GetDiagram(ctx, id)
	if err == nil {
		return diagram, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Diagram{}, fmt.Errorf("lookup diagram: %w", err)
	}

	created, err := s.store.InsertDiagram(ctx, store.Diagram{
		ID:             id,
		Name:           generateName(time.Now()),
		CurrentCode:    "",
		CurrentVersion: 0,
	})
	if err != nil {
		return store.Diagram{}, err
	}
	log.Printf("diagram: created %s", id)
	return created, nil
}

// Create makes a fresh diagram with a server-generated id.
func (s *Service) Create(ctx context.Context) (DiagramView, error) {
	diagram, err := s.ensureDiagram(ctx, util.NewID())
	if err != nil {
		return DiagramView{}, err
	}
	return s.FindOne(ctx, diagram.ID)
}

// GetOrCreate returns the diagram view for id, creating the head row on
// first reference.
func (s *Service) GetOrCreate(ctx context.Context, id string) (DiagramView, error) {
	if _, err := s.ensureDiagram(ctx, id); err != nil {
		return DiagramView{}, err
	}
	return s.FindOne(ctx, id)
}

// FindOne returns the head view; unlike GetOrCreate it is a pure read and
// fails with NotFound for unknown ids.
func (s *Service) FindOne(ctx context.Context, id string) (DiagramView, error) {
	diagram, err := s.store.GetDiagram(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return DiagramView{}, notFound(fmt.Sprintf("Diagram %s not found", id))
	}
	if err != nil {
		return DiagramView{}, fmt.Errorf("get diagram: %w", err)
	}

	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return DiagramView{}, err
	}
	var previousCode *string
	if len(versions) > 1 {
		previousCode = &versions[1].Code
	}

	view := DiagramView{
		ID:           diagram.ID,
		Name:         diagram.Name,
		Code:         diagram.CurrentCode,
		PreviousCode: previousCode,
		Version:      diagram.CurrentVersion,
		CreatedAt:    diagram.CreatedAt,
		UpdatedAt:    diagram.UpdatedAt,
	}
	if diagram.CurrentCode != "" {
		view.ImageURL = s.imageURL(diagram.CurrentCode, render.FormatPNG)
		view.SVGURL = s.imageURL(diagram.CurrentCode, render.FormatSVG)
	}
	return view, nil
}

// List returns diagram summaries, most recently updated first. A non-empty
// searchText filters by full-text match on name and code; if no search
// backend can answer, the listing degrades to unfiltered.
func (s *Service) List(ctx context.Context, searchText string) ([]DiagramListItem, error) {
	searchText = strings.TrimSpace(searchText)

	var (
		summaries []store.DiagramSummary
		err       error
	)
	if searchText == "" {
		summaries, err = s.store.ListDiagrams(ctx)
	} else if ids, ok := s.search.SearchIDs(searchText); ok {
		summaries, err = s.store.ListDiagramsByIDs(ctx, ids)
	} else {
		summaries, err = s.store.ListDiagrams(ctx)
	}
	if err != nil {
		return nil, err
	}

	items := make([]DiagramListItem, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, DiagramListItem{
			ID:             summary.ID,
			Name:           summary.Name,
			CurrentVersion: summary.CurrentVersion,
			VersionsCount:  summary.VersionsCount,
			CommentsCount:  summary.CommentsCount,
			CreatedAt:      summary.CreatedAt,
			UpdatedAt:      summary.UpdatedAt,
			ImageURL:       summary.Thumbnail,
		})
	}
	return items, nil
}

// UpdateCode appends a new version: the head pointer advances, a version
// row is written, retention trims the tail, and watchers are notified.
func (s *Service) UpdateCode(ctx context.Context, id, code string) (UpdateResult, error) {
	diagram, err := s.ensureDiagram(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	var previousCode *string
	if diagram.CurrentCode != "" {
		previous := diagram.CurrentCode
		previousCode = &previous
	}

	diagram.CurrentVersion++
	diagram.CurrentCode = code

	if title := extractTitle(code); title != "" {
		diagram.Name = title
	}

	// Best effort: a failed render keeps whatever thumbnail was there.
	if thumb := s.thumbs.Generate(ctx, code); thumb != nil {
		diagram.Thumbnail = thumb
	}

	version := store.Version{
		ID:            util.NewID(),
		DiagramID:     diagram.ID,
		VersionNumber: diagram.CurrentVersion,
		Code:          code,
	}
	if err := s.store.SaveHeadAndVersion(ctx, diagram, version); err != nil {
		return UpdateResult{}, err
	}

	s.trimVersions(ctx, diagram.ID)
	s.search.IndexDiagram(search.DiagramRecord{ID: diagram.ID, Name: diagram.Name, Code: code})
	s.bus.Publish(events.Event{DiagramID: diagram.ID, Version: diagram.CurrentVersion, Kind: events.KindUpdate})

	result := UpdateResult{
		Success:      true,
		ID:           diagram.ID,
		Code:         diagram.CurrentCode,
		PreviousCode: previousCode,
		Version:      diagram.CurrentVersion,
	}
	if url := s.imageURL(code, render.FormatPNG); url != nil {
		result.ImageURL = *url
	}
	if url := s.imageURL(code, render.FormatSVG); url != nil {
		result.SVGURL = *url
	}
	return result, nil
}

// RestoreVersion moves the head pointer back to an existing version
// without touching history: no version row is created or removed.
func (s *Service) RestoreVersion(ctx context.Context, id string, versionNumber int) (RestoreResult, error) {
	diagram, err := s.store.GetDiagram(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return RestoreResult{}, notFound(fmt.Sprintf("Diagram %s not found", id))
	}
	if err != nil {
		return RestoreResult{}, fmt.Errorf("get diagram: %w", err)
	}

	version, err := s.store.GetVersion(ctx, id, versionNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return RestoreResult{}, notFound(fmt.Sprintf("Version %d not found for diagram %s", versionNumber, id))
	}
	if err != nil {
		return RestoreResult{}, fmt.Errorf("get version: %w", err)
	}

	diagram.CurrentVersion = version.VersionNumber
	diagram.CurrentCode = version.Code
	if thumb := s.thumbs.Generate(ctx, version.Code); thumb != nil {
		diagram.Thumbnail = thumb
	}
	if err := s.store.SaveHead(ctx, diagram); err != nil {
		return RestoreResult{}, err
	}

	s.search.IndexDiagram(search.DiagramRecord{ID: diagram.ID, Name: diagram.Name, Code: diagram.CurrentCode})
	s.bus.Publish(events.Event{DiagramID: diagram.ID, Version: version.VersionNumber, Kind: events.KindUpdate})

	result := RestoreResult{
		Success: true,
		ID:      diagram.ID,
		Code:    version.Code,
		Version: version.VersionNumber,
	}
	if url := s.imageURL(version.Code, render.FormatPNG); url != nil {
		result.ImageURL = *url
	}
	if url := s.imageURL(version.Code, render.FormatSVG); url != nil {
		result.SVGURL = *url
	}
	return result, nil
}

// ListVersions returns history newest-first, flagging the row the head
// pointer currently rests on.
func (s *Service) ListVersions(ctx context.Context, id string) ([]VersionView, error) {
	diagram, err := s.store.GetDiagram(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(fmt.Sprintf("Diagram %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get diagram: %w", err)
	}

	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]VersionView, 0, len(versions))
	for _, version := range versions {
		views = append(views, VersionView{
			ID:            version.ID,
			VersionNumber: version.VersionNumber,
			Code:          version.Code,
			CreatedAt:     version.CreatedAt,
			IsCurrent:     version.VersionNumber == diagram.CurrentVersion,
		})
	}
	return views, nil
}

func (s *Service) Rename(ctx context.Context, id, name string) (RenameResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RenameResult{}, invalid("name is required")
	}

	renamed, err := s.store.RenameDiagram(ctx, id, name)
	if err != nil {
		return RenameResult{}, err
	}
	if !renamed {
		return RenameResult{}, notFound(fmt.Sprintf("Diagram %s not found", id))
	}

	// Indexing replaces the whole document, so the record must carry the
	// current code alongside the new name or content search goes blind.
	if diagram, err := s.store.GetDiagram(ctx, id); err != nil {
		log.Printf("search: reload diagram %s after rename: %v", id, err)
	} else {
		s.search.IndexDiagram(search.DiagramRecord{ID: id, Name: name, Code: diagram.CurrentCode})
	}
	return RenameResult{Success: true, Name: name}, nil
}

// Delete removes the head and, through cascade, every version and comment.
// Deleting an absent diagram is not an error: the result just says so.
func (s *Service) Delete(ctx context.Context, id string) (MutationResult, error) {
	deleted, err := s.store.DeleteDiagram(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	if deleted {
		s.search.DeleteDiagram(id)
		return MutationResult{Success: true, Message: "Diagram deleted"}, nil
	}
	return MutationResult{Success: false, Message: "Diagram not found"}, nil
}

// RegenerateThumbnails rebuilds the cached preview for every diagram that
// has code. Individual failures are counted, never fatal.
func (s *Service) RegenerateThumbnails(ctx context.Context) (RegenerateResult, error) {
	summaries, err := s.store.ListDiagrams(ctx)
	if err != nil {
		return RegenerateResult{}, err
	}

	var result RegenerateResult
	for _, summary := range summaries {
		if summary.CurrentCode == "" {
			continue
		}
		thumb := s.thumbs.Generate(ctx, summary.CurrentCode)
		if thumb == nil {
			result.Errors++
			continue
		}
		diagram := summary.Diagram
		diagram.Thumbnail = thumb
		if err := s.store.SaveHead(ctx, diagram); err != nil {
			log.Printf("thumbnail: save for diagram %s: %v", diagram.ID, err)
			result.Errors++
			continue
		}
		result.Processed++
		log.Printf("thumbnail: regenerated for diagram %s", diagram.ID)
	}
	return result, nil
}

// trimVersions enforces the retention cap after a write. The triggering
// version is already durable, so trim failures only get logged.
func (s *Service) trimVersions(ctx context.Context, diagramID string) {
	maxVersions := s.cfg.MaxVersions
	if maxVersions <= 0 {
		return
	}

	versions, err := s.store.ListVersions(ctx, diagramID)
	if err != nil {
		log.Printf("retention: list versions for %s: %v", diagramID, err)
		return
	}
	if len(versions) <= maxVersions {
		return
	}

	// versions is newest-first; everything from the first excess row down
	// goes, by number, so gaps from earlier trims are irrelevant.
	cutoff := versions[maxVersions].VersionNumber
	removed, err := s.store.DeleteVersionsThrough(ctx, diagramID, cutoff)
	if err != nil {
		log.Printf("retention: trim versions for %s: %v", diagramID, err)
		return
	}
	log.Printf("retention: removed %d old versions for diagram %s", removed, diagramID)
}

func (s *Service) imageURL(code string, format render.Format) *string {
	url, err := s.render.ImageURL(code, format)
	if err != nil {
		log.Printf("render: build %s url: %v", format, err)
		return nil
	}
	return &url
}
