package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"literature-manager/internal/metrics"
	"literature-manager/internal/model"
	"literature-manager/internal/pkg/pdfextract"
	"literature-manager/internal/repository"
	"literature-manager/internal/storage"
	"literature-manager/internal/thumbnail"
)

const (
	PDFURLPrefix       = "/uploads/pdfs/"
	ThumbnailURLPrefix = "/uploads/thumbnails/"

	DefaultAuthor       = "Unknown Author"
	DefaultJournal      = "Unknown Journal"
	DefaultResearchArea = "General"
	DefaultMethodology  = "Experimental"
	DefaultStudyType    = "Empirical"
)

// ThumbnailRenderer produces a JPEG preview of a stored PDF.
type ThumbnailRenderer interface {
	Render(ctx context.Context, pdfPath string) ([]byte, error)
}

// Metadata is the optional, user-supplied part of an upload. Authors and
// Keywords are comma separated.
type Metadata struct {
	Title        string
	Authors      string
	Year         int
	Journal      string
	ResearchArea string
	Methodology  string
	StudyType    string
	Keywords     string
	Citations    int
	Abstract     string
	DOI          string
}

// UploadInput is one file to ingest. Either Data holds the content, or Open
// reads it on demand; Size is then the declared length and is checked before
// anything is read.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	Size        int64
	Open        func() (io.ReadCloser, error)
	Metadata    Metadata
}

type BatchResult struct {
	Success  bool         `json:"success"`
	Paper    *model.Paper `json:"paper,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type IngestService struct {
	repo        *repository.PaperRepository
	pdfs        *storage.Disk
	thumbs      *storage.Disk
	renderer    ThumbnailRenderer
	maxFileSize int64
	maxBatch    int
	notifier
}

func NewIngestService(
	repo *repository.PaperRepository,
	pdfs *storage.Disk,
	thumbs *storage.Disk,
	renderer ThumbnailRenderer,
	events EventPublisher,
	cache StatsCache,
	maxFileSize int64,
	maxBatch int,
) *IngestService {
	if events == nil {
		events = NopPublisher
	}
	if maxFileSize <= 0 {
		maxFileSize = 100 << 20
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &IngestService{
		repo:        repo,
		pdfs:        pdfs,
		thumbs:      thumbs,
		renderer:    renderer,
		maxFileSize: maxFileSize,
		maxBatch:    maxBatch,
		notifier:    notifier{events: events, cache: cache, now: time.Now},
	}
}

func (s *IngestService) MaxBatch() int {
	return s.maxBatch
}

func (s *IngestService) MaxFileSize() int64 {
	return s.maxFileSize
}

// Ingest validates, stores and records one uploaded PDF.
func (s *IngestService) Ingest(ctx context.Context, in UploadInput) (*model.Paper, error) {
	paper, err := s.ingest(ctx, in)
	result := "ok"
	switch {
	case errors.Is(err, ErrUploadRejected):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	metrics.PapersUploaded.WithLabelValues(result).Inc()
	return paper, err
}

// IngestBatch ingests each file independently. Batch uploads carry no
// metadata, so every paper gets the filename-derived defaults.
func (s *IngestService) IngestBatch(ctx context.Context, inputs []UploadInput) ([]BatchResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidInput)
	}
	if len(inputs) > s.maxBatch {
		return nil, fmt.Errorf("%w: at most %d files per batch", ErrInvalidInput, s.maxBatch)
	}

	results := make([]BatchResult, 0, len(inputs))
	for _, in := range inputs {
		in.Metadata = Metadata{}
		paper, err := s.Ingest(ctx, in)
		if err != nil {
			log.Warn().Err(err).Str("filename", in.Filename).Msg("batch item failed")
			results = append(results, BatchResult{Success: false, Filename: in.Filename, Error: err.Error()})
			continue
		}
		results = append(results, BatchResult{Success: true, Paper: paper})
	}
	return results, nil
}

func (s *IngestService) ingest(ctx context.Context, in UploadInput) (*model.Paper, error) {
	if in.Size > s.maxFileSize {
		return nil, s.tooLarge()
	}
	if in.Data == nil && in.Open != nil {
		data, err := s.readLimited(in.Open)
		if err != nil {
			return nil, err
		}
		in.Data = data
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	pages, err := pdfextract.PageCount(in.Data)
	if err != nil {
		log.Debug().Err(err).Str("filename", in.Filename).Msg("page count unavailable")
	}

	now := s.now()
	name := storage.UniqueName("paper", "pdf", now)
	pdfPath, err := s.pdfs.Save(name, in.Data)
	if err != nil {
		return nil, err
	}

	paper := BuildPaper(in.Filename, in.Metadata, now)
	paper.PDFURL = PDFURLPrefix + name
	paper.PDFPath = pdfPath
	paper.FileSize = int64(len(in.Data))
	paper.PageCount = pages

	thumbName := "thumb-" + strings.TrimSuffix(name, ".pdf") + ".jpg"
	if thumbPath, ok := s.renderThumbnail(ctx, pdfPath, thumbName); ok {
		paper.ThumbnailURL = ThumbnailURLPrefix + thumbName
		paper.ThumbnailPath = thumbPath
		paper.Thumbnail = paper.ThumbnailURL
	}

	saved, err := s.repo.Add(paper)
	if err != nil {
		_ = s.pdfs.Remove(name)
		if paper.ThumbnailPath != "" {
			_ = s.thumbs.Remove(thumbName)
		}
		return nil, fmt.Errorf("save paper failed: %w", err)
	}

	log.Info().Int("paper_id", saved.ID).Str("filename", in.Filename).Int64("size", saved.FileSize).Msg("paper uploaded")
	s.changed(ctx, saved, model.EventCreated, in.Filename)
	return saved, nil
}

func (s *IngestService) validate(in UploadInput) error {
	switch {
	case len(in.Data) == 0:
		return fmt.Errorf("%w: empty file", ErrUploadRejected)
	case int64(len(in.Data)) > s.maxFileSize:
		return s.tooLarge()
	case !strings.EqualFold(filepath.Ext(in.Filename), ".pdf") && !isPDFContentType(in.ContentType):
		return fmt.Errorf("%w: only PDF files are accepted", ErrUploadRejected)
	case !pdfextract.IsPDF(in.Data):
		return fmt.Errorf("%w: %v", ErrUploadRejected, pdfextract.ErrNotPDF)
	}
	return nil
}

// readLimited reads at most one byte past the size limit, enough for validate
// to reject an oversized file whose declared size was wrong.
func (s *IngestService) readLimited(open func() (io.ReadCloser, error)) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("open upload failed: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	return data, nil
}

func (s *IngestService) tooLarge() error {
	return fmt.Errorf("%w: file exceeds %d MB", ErrUploadRejected, s.maxFileSize>>20)
}

// renderThumbnail stores the preview and returns its path. Any failure leaves
// the paper without a thumbnail.
func (s *IngestService) renderThumbnail(ctx context.Context, pdfPath, name string) (string, bool) {
	if s.renderer == nil {
		return "", false
	}
	data, err := s.renderer.Render(ctx, pdfPath)
	if errors.Is(err, thumbnail.ErrDisabled) {
		return "", false
	}
	if err != nil {
		metrics.ThumbnailFailures.Inc()
		log.Warn().Err(err).Str("pdf", pdfPath).Msg("thumbnail generation failed")
		return "", false
	}
	path, err := s.thumbs.Save(name, data)
	if err != nil {
		metrics.ThumbnailFailures.Inc()
		log.Warn().Err(err).Str("pdf", pdfPath).Msg("store thumbnail failed")
		return "", false
	}
	return path, true
}

// BuildPaper fills every metadata field, falling back to the defaults for
// anything md leaves empty.
func BuildPaper(filename string, md Metadata, now time.Time) model.Paper {
	title := strings.TrimSpace(md.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	authors := splitList(md.Authors)
	if len(authors) == 0 {
		authors = []string{DefaultAuthor}
	}
	year := md.Year
	if year <= 0 {
		year = now.Year()
	}
	citations := md.Citations
	if citations < 0 {
		citations = 0
	}

	return model.Paper{
		Title:        title,
		Authors:      authors,
		Year:         year,
		Journal:      fallback(md.Journal, DefaultJournal),
		ResearchArea: fallback(md.ResearchArea, DefaultResearchArea),
		Methodology:  fallback(md.Methodology, DefaultMethodology),
		StudyType:    fallback(md.StudyType, DefaultStudyType),
		Keywords:     splitList(md.Keywords),
		Citations:    citations,
		Downloads:    0,
		Abstract:     strings.TrimSpace(md.Abstract),
		DOI:          strings.TrimSpace(md.DOI),
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fallback(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func isPDFContentType(ct string) bool {
	mediaType, _, _ := strings.Cut(ct, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/pdf")
}
