package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"literature-manager/internal/model"
	"literature-manager/internal/repository"
	"literature-manager/internal/search"
	"literature-manager/internal/storage"
)

const recentUploadsLimit = 10

// EventPublisher hands paper lifecycle events to the activity log.
type EventPublisher interface {
	Publish(ctx context.Context, event model.PaperEvent) error
}

type StatsCache interface {
	GetStats(ctx context.Context) (*model.Stats, bool, error)
	SetStats(ctx context.Context, stats *model.Stats) error
	Invalidate(ctx context.Context) error
}

type EventReader interface {
	ListRecent(limit int) ([]model.PaperEvent, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.PaperEvent) error { return nil }

// NopPublisher drops every event.
var NopPublisher EventPublisher = nopPublisher{}

// notifier fans a mutation out to the activity log and the stats cache.
// Neither is allowed to fail the mutation itself.
type notifier struct {
	events EventPublisher
	cache  StatsCache
	now    func() time.Time
}

func (n notifier) changed(ctx context.Context, paper *model.Paper, action, detail string) {
	if n.cache != nil {
		if err := n.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("invalidate stats cache failed")
		}
	}
	if n.events == nil || paper == nil {
		return
	}
	event := model.PaperEvent{
		PaperID:   paper.ID,
		Action:    action,
		Title:     paper.Title,
		Detail:    detail,
		CreatedAt: n.now(),
	}
	if err := n.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Int("paper_id", paper.ID).Str("action", action).Msg("publish paper event failed")
	}
}

type LibraryService struct {
	repo     *repository.PaperRepository
	pdfs     *storage.Disk
	thumbs   *storage.Disk
	activity EventReader
	notifier
}

func NewLibraryService(
	repo *repository.PaperRepository,
	pdfs *storage.Disk,
	thumbs *storage.Disk,
	events EventPublisher,
	cache StatsCache,
	activity EventReader,
) *LibraryService {
	if events == nil {
		events = NopPublisher
	}
	return &LibraryService{
		repo:     repo,
		pdfs:     pdfs,
		thumbs:   thumbs,
		activity: activity,
		notifier: notifier{events: events, cache: cache, now: time.Now},
	}
}

func (s *LibraryService) List() (*model.PapersDocument, error) {
	return s.repo.Load()
}

func (s *LibraryService) Get(id int) (*model.Paper, error) {
	paper, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaperNotFound
	}
	return paper, err
}

func (s *LibraryService) Search(filter search.Filter) ([]model.Paper, error) {
	doc, err := s.repo.Load()
	if err != nil {
		return nil, err
	}
	return search.Apply(doc.Papers, filter), nil
}

// Stats is served from the cache when one is configured and warm.
func (s *LibraryService) Stats(ctx context.Context) (*model.Stats, error) {
	if s.cache != nil {
		if cached, hit, err := s.cache.GetStats(ctx); err == nil && hit {
			return cached, nil
		}
	}

	doc, err := s.repo.Load()
	if err != nil {
		return nil, err
	}
	stats := ComputeStats(doc.Papers)
	if s.cache != nil {
		if err := s.cache.SetStats(ctx, stats); err != nil {
			log.Warn().Err(err).Msg("store stats in cache failed")
		}
	}
	return stats, nil
}

func (s *LibraryService) Update(ctx context.Context, id int, patch map[string]any) (*model.Paper, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidInput)
	}

	updated, err := s.repo.Update(id, patch)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrPaperNotFound
	case errors.Is(err, repository.ErrInvalidPatch):
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		return nil, err
	}

	s.changed(ctx, updated, model.EventUpdated, patchKeys(patch))
	return updated, nil
}

// Delete drops the record and then its files. A file that cannot be removed
// is logged, not returned.
func (s *LibraryService) Delete(ctx context.Context, id int) (*model.Paper, error) {
	removed, err := s.repo.Delete(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaperNotFound
	}
	if err != nil {
		return nil, err
	}

	if removed.PDFPath != "" {
		if err := s.pdfs.Remove(removed.PDFPath); err != nil {
			log.Warn().Err(err).Int("paper_id", id).Msg("remove pdf failed")
		}
	}
	if removed.ThumbnailPath != "" {
		if err := s.thumbs.Remove(removed.ThumbnailPath); err != nil {
			log.Warn().Err(err).Int("paper_id", id).Msg("remove thumbnail failed")
		}
	}

	s.changed(ctx, removed, model.EventDeleted, "")
	return removed, nil
}

func (s *LibraryService) ListActivity(limit int) ([]model.PaperEvent, error) {
	if s.activity == nil {
		return nil, ErrActivityDisabled
	}
	return s.activity.ListRecent(limit)
}

// ComputeStats aggregates the dashboard figures. recentUploads holds the last
// ten papers of the collection, newest first.
func ComputeStats(papers []model.Paper) *model.Stats {
	stats := &model.Stats{
		TotalPapers:          len(papers),
		YearDistribution:     map[int]int{},
		CategoryDistribution: map[string]int{},
		RecentUploads:        []model.Paper{},
	}
	for _, p := range papers {
		stats.TotalDownloads += p.Downloads
		stats.TotalCitations += p.Citations
		stats.YearDistribution[p.Year]++
		stats.CategoryDistribution[p.ResearchArea]++
	}
	for i := len(papers) - 1; i >= 0 && len(stats.RecentUploads) < recentUploadsLimit; i-- {
		stats.RecentUploads = append(stats.RecentUploads, papers[i])
	}
	return stats
}

func patchKeys(patch map[string]any) string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
