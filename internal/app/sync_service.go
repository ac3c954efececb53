package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"literature-manager/internal/model"
	"literature-manager/internal/repository"
	"literature-manager/internal/storage"
	"literature-manager/internal/syncer"
)

// SyncService pushes the server's local papers to the cloud backend.
type SyncService struct {
	repo   *repository.PaperRepository
	pdfs   *storage.Disk
	thumbs *storage.Disk
	remote syncer.Syncer
	notifier
}

func NewSyncService(
	repo *repository.PaperRepository,
	pdfs *storage.Disk,
	thumbs *storage.Disk,
	remote syncer.Syncer,
	events EventPublisher,
	cache StatsCache,
) *SyncService {
	if events == nil {
		events = NopPublisher
	}
	return &SyncService{
		repo:     repo,
		pdfs:     pdfs,
		thumbs:   thumbs,
		remote:   remote,
		notifier: notifier{events: events, cache: cache, now: time.Now},
	}
}

// SyncPaper uploads one paper's files and marks the local record as synced.
// The record takes the backend's file URLs so a later SyncAll publishes links
// that resolve remotely; PDFPath and ThumbnailPath still point at local files.
func (s *SyncService) SyncPaper(ctx context.Context, id int) (*model.Paper, error) {
	if s.remote == nil || !s.remote.IsConfigured() {
		return nil, ErrSyncNotConfigured
	}

	paper, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaperNotFound
	}
	if err != nil {
		return nil, err
	}
	if paper.PDFPath == "" {
		return nil, fmt.Errorf("%w: paper %d has no stored PDF", ErrInvalidInput, id)
	}

	data, err := s.pdfs.Read(paper.PDFPath)
	if err != nil {
		return nil, err
	}
	file := &syncer.File{Name: filepath.Base(paper.PDFPath), Data: data}
	if paper.ThumbnailPath != "" {
		if thumb, err := s.thumbs.Read(paper.ThumbnailPath); err == nil {
			file.Thumbnail = thumb
		} else {
			log.Warn().Err(err).Int("paper_id", id).Msg("read thumbnail for sync failed")
		}
	}

	synced, err := s.remote.SyncPaper(ctx, *paper, file)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{
		"isCloudSynced": true,
		"syncTime":      synced.SyncTime,
		"pdfUrl":        synced.PDFURL,
	}
	if synced.Thumbnail != "" {
		patch["thumbnail"] = synced.Thumbnail
		patch["thumbnailUrl"] = synced.ThumbnailURL
	}
	if _, err := s.repo.Update(id, patch); err != nil {
		return nil, fmt.Errorf("mark paper synced failed: %w", err)
	}
	s.changed(ctx, synced, model.EventSynced, synced.PDFURL)
	return synced, nil
}

// SyncAll replaces the remote collection with the local one.
func (s *SyncService) SyncAll(ctx context.Context) (int, error) {
	if s.remote == nil || !s.remote.IsConfigured() {
		return 0, ErrSyncNotConfigured
	}
	doc, err := s.repo.Load()
	if err != nil {
		return 0, err
	}
	if err := s.remote.SyncAllData(ctx, doc.Papers); err != nil {
		return 0, err
	}
	log.Info().Int("papers", len(doc.Papers)).Str("backend", s.remote.Name()).Msg("collection synced")
	return len(doc.Papers), nil
}

func (s *SyncService) Status() syncer.Status {
	if s.remote == nil {
		return syncer.Status{}
	}
	return s.remote.Status()
}
