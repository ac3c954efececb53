package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"literature-manager/internal/model"
	"literature-manager/internal/search"
)

const backendServer = "server"

// Envelope codes the server answers with; kept in step with
// transport/http/response.
const (
	codeOK       = 0
	codeNotFound = 40401
	codeBusy     = 40901
)

// RemoteError is a non-zero envelope code from the server.
type RemoteError struct {
	Status  int
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error %d (http %d): %s", e.Code, e.Status, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == codeNotFound
	case ErrBusy:
		return e.Code == codeBusy
	case ErrUnavailable:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ServerSyncer drives a literature-manager HTTP server. The server persists on
// every call, so SyncAllData has nothing to do.
type ServerSyncer struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	tracker
}

func NewServerSyncer(baseURL string, hc *http.Client) *ServerSyncer {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &ServerSyncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		now:     time.Now,
	}
}

func (s *ServerSyncer) Name() string {
	return backendServer
}

func (s *ServerSyncer) IsConfigured() bool {
	return s.baseURL != ""
}

// SyncPaper uploads the PDF together with the paper's metadata; the server
// assigns the id.
func (s *ServerSyncer) SyncPaper(ctx context.Context, paper model.Paper, file *File) (synced *model.Paper, err error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer func() {
		s.end(s.now().UTC(), err)
		observe(backendServer, "sync_paper", err)
	}()

	if file == nil || len(file.Data) == 0 {
		return nil, ErrMissingFile
	}

	body, contentType, err := uploadForm(paper, file)
	if err != nil {
		return nil, err
	}
	var created model.Paper
	if err := s.call(ctx, http.MethodPost, "/api/upload", contentType, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *ServerSyncer) SyncAllData(context.Context, []model.Paper) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return nil
}

func (s *ServerSyncer) LoadSharedData(ctx context.Context) ([]model.Paper, error) {
	var doc model.PapersDocument
	if err := s.call(ctx, http.MethodGet, "/api/papers", "", nil, &doc); err != nil {
		return nil, err
	}
	if doc.Papers == nil {
		doc.Papers = []model.Paper{}
	}
	return doc.Papers, nil
}

func (s *ServerSyncer) UpdatePaper(ctx context.Context, id int, patch map[string]any) (*model.Paper, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch failed: %w", err)
	}
	var updated model.Paper
	err = s.call(ctx, http.MethodPut, "/api/papers/"+strconv.Itoa(id), "application/json", bytes.NewReader(payload), &updated)
	observe(backendServer, "update", err)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ServerSyncer) DeletePaper(ctx context.Context, id int) (*model.Paper, error) {
	var removed model.Paper
	err := s.call(ctx, http.MethodDelete, "/api/papers/"+strconv.Itoa(id), "", nil, &removed)
	observe(backendServer, "delete", err)
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func (s *ServerSyncer) Search(ctx context.Context, filter search.Filter) ([]model.Paper, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("q", filter.Search)
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Year != 0 {
		q.Set("year", strconv.Itoa(filter.Year))
	}
	if filter.Author != "" {
		q.Set("author", filter.Author)
	}

	var result struct {
		Papers     []model.Paper `json:"papers"`
		TotalCount int           `json:"totalCount"`
	}
	if err := s.call(ctx, http.MethodGet, "/api/search?"+q.Encode(), "", nil, &result); err != nil {
		return nil, err
	}
	if result.Papers == nil {
		result.Papers = []model.Paper{}
	}
	return result.Papers, nil
}

func (s *ServerSyncer) TestConnection(ctx context.Context) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	var health map[string]any
	if err := s.call(ctx, http.MethodGet, "/healthz", "", nil, &health); err != nil {
		return "", fmt.Errorf("server connection test failed: %w", err)
	}
	return "server reachable at " + s.baseURL, nil
}

func (s *ServerSyncer) Status() Status {
	st := Status{
		Backend:    backendServer,
		Configured: s.IsConfigured(),
		Target:     s.baseURL,
	}
	if s.baseURL != "" {
		st.DataURL = s.baseURL + "/api/papers"
	}
	s.fill(&st)
	return st
}

func (s *ServerSyncer) call(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("decode server response failed: %w", err)
	}
	if env.Code != codeOK || resp.StatusCode >= http.StatusBadRequest {
		return &RemoteError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode server response failed: %w", err)
	}
	return nil
}

// uploadForm builds the multipart body of /api/upload, filling the defaults
// the server would otherwise apply. An empty title is sent as is so the server
// derives it from the file name.
func uploadForm(paper model.Paper, file *File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := file.Name
	if name == "" {
		name = "paper.pdf"
	}
	part, err := w.CreatePart(pdfPartHeader(name))
	if err != nil {
		return nil, "", fmt.Errorf("create upload part failed: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write upload part failed: %w", err)
	}

	authors := strings.Join(paper.Authors, ",")
	if authors == "" {
		authors = "Unknown Author"
	}
	year := paper.Year
	if year == 0 {
		year = time.Now().Year()
	}
	fields := []struct{ key, value string }{
		{"title", strings.TrimSpace(paper.Title)},
		{"authors", authors},
		{"year", strconv.Itoa(year)},
		{"journal", orDefault(paper.Journal, "Unknown Journal")},
		{"researchArea", orDefault(paper.ResearchArea, "General")},
		{"methodology", orDefault(paper.Methodology, "Experimental")},
		{"studyType", orDefault(paper.StudyType, "Empirical")},
		{"keywords", strings.Join(paper.Keywords, ",")},
		{"citations", strconv.Itoa(paper.Citations)},
		{"abstract", paper.Abstract},
		{"doi", paper.DOI},
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("write form field failed: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close upload form failed: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func pdfPartHeader(filename string) textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="pdf"; filename=%q`, filename)},
		"Content-Type":        {"application/pdf"},
	}
}
