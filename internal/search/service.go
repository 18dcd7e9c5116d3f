package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG
// FTS. A search failure on both sides degrades to no filtering at all;
// the caller then lists everything.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// SearchIDs resolves text to matching diagram ids. The second return value
// is false when no backend could answer; callers should degrade to an
// unfiltered listing rather than an empty one.
func (s *Service) SearchIDs(text string) ([]string, bool) {
	if s.meili != nil && s.meili.Healthy() {
		ids, err := s.meili.SearchIDs(text)
		if err == nil {
			return ids, true
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	ids, err := s.pgfts.SearchIDs(text)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return nil, false
	}
	return ids, true
}

// IndexDiagram indexes a diagram (fire-and-forget to Meilisearch).
func (s *Service) IndexDiagram(doc DiagramRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDiagram(doc); err != nil {
			log.Printf("search: index diagram %s: %v", doc.ID, err)
		}
	}()
}

// DeleteDiagram removes a diagram from the search index (fire-and-forget).
func (s *Service) DeleteDiagram(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDiagram(id); err != nil {
			log.Printf("search: delete diagram %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes every diagram from PostgreSQL into
// Meilisearch. Called at startup when Meilisearch is configured.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexDiagrams(records); err != nil {
		log.Printf("search: reindex diagrams: %v", err)
	}
}
