package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"literature-manager/internal/model"
	"literature-manager/internal/repository"
	"literature-manager/internal/storage"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

type fakeRenderer struct {
	data []byte
	err  error
}

func (f fakeRenderer) Render(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.PaperEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e model.PaperEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type memoryStatsCache struct {
	stats       *model.Stats
	invalidated int
	sets        int
}

func (c *memoryStatsCache) GetStats(context.Context) (*model.Stats, bool, error) {
	return c.stats, c.stats != nil, nil
}

func (c *memoryStatsCache) SetStats(_ context.Context, s *model.Stats) error {
	c.sets++
	c.stats = s
	return nil
}

func (c *memoryStatsCache) Invalidate(context.Context) error {
	c.invalidated++
	c.stats = nil
	return nil
}

type fixture struct {
	dir    string
	repo   *repository.PaperRepository
	pdfs   *storage.Disk
	thumbs *storage.Disk
	events *recordingPublisher
	cache  *memoryStatsCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	pdfs, err := storage.NewDisk(filepath.Join(dir, "pdfs"))
	require.NoError(t, err)
	thumbs, err := storage.NewDisk(filepath.Join(dir, "thumbnails"))
	require.NoError(t, err)
	return &fixture{
		dir:    dir,
		repo:   repository.NewPaperRepository(filepath.Join(dir, "data", "papers.json")),
		pdfs:   pdfs,
		thumbs: thumbs,
		events: &recordingPublisher{},
		cache:  &memoryStatsCache{},
	}
}

func (f *fixture) ingest(renderer ThumbnailRenderer, maxSize int64) *IngestService {
	return NewIngestService(f.repo, f.pdfs, f.thumbs, renderer, f.events, f.cache, maxSize, 3)
}

func (f *fixture) library() *LibraryService {
	return NewLibraryService(f.repo, f.pdfs, f.thumbs, f.events, f.cache, nil)
}

var errRender = errors.New("rasteriser exploded")

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
}
