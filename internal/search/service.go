package search

import (
	"context"
	"log/slog"
)

// Service tries Meilisearch first and falls back to PostgreSQL. Either
// backend may be nil.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *slog.Logger
}

func NewService(meili *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search never fails; backend errors are logged and yield an empty response.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("pgfts search", "error", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPost indexes a publish result (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(rec PostRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPost(rec); err != nil {
			s.logger.Warn("index post", "id", rec.ID, "error", err)
		}
	}()
}

// ReindexFromPG pushes the latest attempt of every document to Meilisearch.
func (s *Service) ReindexFromPG(ctx context.Context) (int, error) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return 0, nil
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexPosts(records); err != nil {
		return 0, err
	}
	s.logger.Info("reindexed posts", "count", len(records))
	return len(records), nil
}

// Close stops background work owned by the service.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
