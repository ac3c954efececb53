package syncer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"literature-manager/internal/config"
	"literature-manager/internal/githubstore"
	"literature-manager/internal/model"
	"literature-manager/internal/repository"
	"literature-manager/internal/search"
)

const backendGitHub = "github"

// GitHubSyncer stores papers in a GitHub data repository: PDFs under the pdfs
// directory, thumbnails under the thumbnails directory and the metadata in one
// papers.json document.
type GitHubSyncer struct {
	client     *githubstore.Client
	papersPath string
	pdfsDir    string
	thumbsDir  string
	now        func() time.Time

	tracker
}

func NewGitHubSyncer(client *githubstore.Client, cfg config.GitHubConfig) *GitHubSyncer {
	return &GitHubSyncer{
		client:     client,
		papersPath: orDefault(cfg.PapersPath, "papers.json"),
		pdfsDir:    orDefault(strings.Trim(cfg.PDFsPath, "/"), "pdfs"),
		thumbsDir:  orDefault(strings.Trim(cfg.ThumbnailsPath, "/"), "thumbnails"),
		now:        time.Now,
	}
}

func (s *GitHubSyncer) Name() string {
	return backendGitHub
}

func (s *GitHubSyncer) IsConfigured() bool {
	return s.client.IsConfigured()
}

func (s *GitHubSyncer) Client() *githubstore.Client {
	return s.client
}

func (s *GitHubSyncer) SyncPaper(ctx context.Context, paper model.Paper, file *File) (synced *model.Paper, err error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	defer func() {
		s.end(now, err)
		observe(backendGitHub, "sync_paper", err)
	}()

	if file == nil || len(file.Data) == 0 {
		return nil, ErrMissingFile
	}

	base := fmt.Sprintf("paper-%d-%d", paper.ID, now.UnixMilli())
	pdfPath := path.Join(s.pdfsDir, base+".pdf")
	if _, err := s.client.Put(ctx, pdfPath, file.Data, fmt.Sprintf("Add PDF for paper %d: %s", paper.ID, paper.Title), ""); err != nil {
		return nil, fmt.Errorf("upload pdf failed: %w", err)
	}
	paper.PDFURL = s.client.RawURL(pdfPath)

	thumb := file.Thumbnail
	if len(thumb) == 0 {
		thumb = decodeDataURL(paper.Thumbnail)
	}
	if len(thumb) > 0 {
		thumbPath := path.Join(s.thumbsDir, base+".jpg")
		if _, err := s.client.Put(ctx, thumbPath, thumb, fmt.Sprintf("Add thumbnail for paper %d", paper.ID), ""); err != nil {
			log.Warn().Err(err).Int("paper_id", paper.ID).Msg("thumbnail upload failed, continuing without it")
		} else {
			paper.Thumbnail = s.client.RawURL(thumbPath)
			paper.ThumbnailURL = paper.Thumbnail
		}
	}

	paper.IsCloudSynced = true
	paper.SyncTime = &now
	log.Info().Int("paper_id", paper.ID).Str("pdf", pdfPath).Msg("paper synced to github")
	return &paper, nil
}

func (s *GitHubSyncer) SyncAllData(ctx context.Context, papers []model.Paper) (err error) {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	defer func() { observe(backendGitHub, "sync_all", err) }()

	doc := model.NewPapersDocument(papers, s.now().UTC())
	_, err = s.writeDocument(ctx, doc, "", fmt.Sprintf("Update papers data (%d papers)", doc.TotalCount))
	return err
}

// LoadSharedData reads the public snapshot through the raw content host. A
// repository without papers.json yet yields an empty collection.
func (s *GitHubSyncer) LoadSharedData(ctx context.Context) ([]model.Paper, error) {
	raw, err := s.client.Raw(ctx, s.papersPath)
	if errors.Is(err, githubstore.ErrNotFound) {
		return []model.Paper{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load shared data failed: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return doc.Papers, nil
}

// LoadLatest reads papers.json through the Contents API. Unlike
// LoadSharedData it never sees a cached snapshot, so it is the base for
// choosing new ids.
func (s *GitHubSyncer) LoadLatest(ctx context.Context) ([]model.Paper, error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}
	blob, err := s.client.Get(ctx, s.papersPath)
	if errors.Is(err, githubstore.ErrNotFound) {
		return []model.Paper{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read papers data failed: %w", err)
	}
	doc, err := decodeDocument(blob.Content)
	if err != nil {
		return nil, err
	}
	return doc.Papers, nil
}

// AppendPapers adds papers to the remote collection without touching the
// records already there. A paper whose id is taken by the time the write
// lands gets the next free id; the stored papers are returned in order.
func (s *GitHubSyncer) AppendPapers(ctx context.Context, papers []model.Paper) ([]model.Paper, error) {
	var stored []model.Paper
	err := s.modify(ctx, fmt.Sprintf("Add %d paper(s)", len(papers)), func(doc *model.PapersDocument) error {
		stored = make([]model.Paper, 0, len(papers))
		for _, p := range papers {
			if p.ID <= 0 || doc.IndexOf(p.ID) >= 0 {
				p.ID = doc.MaxID() + 1
			}
			doc.Papers = append(doc.Papers, p)
			stored = append(stored, p)
		}
		return nil
	})
	observe(backendGitHub, "append", err)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *GitHubSyncer) UpdatePaper(ctx context.Context, id int, patch map[string]any) (*model.Paper, error) {
	var updated model.Paper
	err := s.modify(ctx, fmt.Sprintf("Update paper %d", id), func(doc *model.PapersDocument) error {
		idx := doc.IndexOf(id)
		if idx < 0 {
			return ErrNotFound
		}
		merged, err := repository.ApplyPatch(doc.Papers[idx], patch)
		if err != nil {
			return err
		}
		doc.Papers[idx] = merged
		updated = merged
		return nil
	})
	observe(backendGitHub, "update", err)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeletePaper drops the record, then removes its files on a best-effort basis.
func (s *GitHubSyncer) DeletePaper(ctx context.Context, id int) (*model.Paper, error) {
	var removed model.Paper
	err := s.modify(ctx, fmt.Sprintf("Delete paper %d", id), func(doc *model.PapersDocument) error {
		idx := doc.IndexOf(id)
		if idx < 0 {
			return ErrNotFound
		}
		removed = doc.Papers[idx]
		doc.Papers = append(doc.Papers[:idx], doc.Papers[idx+1:]...)
		return nil
	})
	observe(backendGitHub, "delete", err)
	if err != nil {
		return nil, err
	}

	for _, u := range []string{removed.PDFURL, removed.Thumbnail} {
		p, ok := s.repoPath(u)
		if !ok {
			continue
		}
		if err := s.client.Delete(ctx, p, "Delete "+p, ""); err != nil && !errors.Is(err, githubstore.ErrNotFound) {
			log.Warn().Err(err).Str("path", p).Msg("remove synced file failed")
		}
	}
	return &removed, nil
}

func (s *GitHubSyncer) Search(ctx context.Context, filter search.Filter) ([]model.Paper, error) {
	papers, err := s.LoadSharedData(ctx)
	if err != nil {
		return nil, err
	}
	return search.Apply(papers, filter), nil
}

func (s *GitHubSyncer) TestConnection(ctx context.Context) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	login, err := s.client.User(ctx)
	if err != nil {
		return "", fmt.Errorf("github connection test failed: %w", err)
	}
	return "authenticated as " + login, nil
}

func (s *GitHubSyncer) Status() Status {
	cfg := s.client.Config()
	st := Status{
		Backend:    backendGitHub,
		Configured: s.IsConfigured(),
		Target:     cfg.Owner + "/" + cfg.Repo,
	}
	if cfg.Owner != "" && cfg.Repo != "" {
		st.DataURL = s.client.RawURL(s.papersPath)
	}
	s.fill(&st)
	return st
}

// modify is a read-modify-write of papers.json through the Contents API. A
// concurrent writer makes the write conflict; papers.json is then read again
// and fn re-applied, so fn must only depend on the document it is given.
func (s *GitHubSyncer) modify(ctx context.Context, message string, fn func(doc *model.PapersDocument) error) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	var fnErr error
	_, err := s.client.Update(ctx, s.papersPath, message, func(current []byte) ([]byte, error) {
		doc := model.NewPapersDocument(nil, s.now().UTC())
		if current != nil {
			decoded, err := decodeDocument(current)
			if err != nil {
				return nil, err
			}
			doc = decoded
		}
		if fnErr = fn(doc); fnErr != nil {
			return nil, fnErr
		}
		doc.Touch(s.now().UTC())
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode papers data failed: %w", err)
		}
		return payload, nil
	})
	if err != nil && fnErr == nil {
		return fmt.Errorf("write papers data failed: %w", err)
	}
	return err
}

func (s *GitHubSyncer) writeDocument(ctx context.Context, doc *model.PapersDocument, sha, message string) (*githubstore.PutResult, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode papers data failed: %w", err)
	}
	res, err := s.client.Put(ctx, s.papersPath, payload, message, sha)
	if err != nil {
		return nil, fmt.Errorf("write papers data failed: %w", err)
	}
	return res, nil
}

// repoPath turns a raw URL produced by this syncer back into a repository path.
func (s *GitHubSyncer) repoPath(rawURL string) (string, bool) {
	prefix := s.client.RawURL("")
	if rawURL == "" || !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	p, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}

// decodeDocument accepts the collection document and, for older snapshots, a
// bare array of papers.
func decodeDocument(raw []byte) (*model.PapersDocument, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var papers []model.Paper
		if err := json.Unmarshal(raw, &papers); err != nil {
			return nil, fmt.Errorf("decode papers data failed: %w", err)
		}
		return model.NewPapersDocument(papers, time.Time{}), nil
	}

	var doc model.PapersDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode papers data failed: %w", err)
	}
	doc.Touch(doc.LastUpdate)
	return &doc, nil
}

// decodeDataURL extracts the bytes of a base64 data: URL; anything else
// yields nil.
func decodeDataURL(s string) []byte {
	if !strings.HasPrefix(s, "data:") {
		return nil
	}
	meta, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	return data
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
