package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"literature-manager/internal/bootstrap"
	"literature-manager/internal/config"
	"literature-manager/internal/model"
	"literature-manager/internal/transport/http/response"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, opts ...func(*config.Config)) (*gin.Engine, *bootstrap.App) {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.App.GinMode = gin.TestMode
	cfg.Storage.DataFile = filepath.Join(dir, "data", "papers.json")
	cfg.Storage.PDFDir = filepath.Join(dir, "uploads", "pdfs")
	cfg.Storage.ThumbnailDir = filepath.Join(dir, "uploads", "thumbnails")
	cfg.Storage.StaticDir = filepath.Join(dir, "public")
	cfg.Thumbnail.Enabled = false
	cfg.GitHub.Token = ""
	cfg.MySQL.Enabled = false
	cfg.Redis.Enabled = false
	cfg.RabbitMQ.Enabled = false
	for _, opt := range opts {
		opt(cfg)
	}

	require.NoError(t, os.MkdirAll(cfg.Storage.StaticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.StaticDir, "index.html"), []byte("<h1>library</h1>"), 0o644))

	app, err := bootstrap.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return NewRouter(app), app
}

func perform(t *testing.T, router *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func uploadRequest(t *testing.T, field string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	path := "/api/upload"
	if field == "pdfs" {
		path = "/api/batch-upload"
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func uploadOne(t *testing.T, router *gin.Engine, fields map[string]string) model.Paper {
	t.Helper()
	rec, env := perform(t, router, uploadRequest(t, "pdf", map[string][]byte{"deep-learning.pdf": samplePDF}, fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var paper model.Paper
	require.NoError(t, json.Unmarshal(env.Data, &paper))
	return paper
}

func TestUploadAndList(t *testing.T) {
	router, _ := newTestRouter(t)

	paper := uploadOne(t, router, map[string]string{
		"title":     "Deep Learning",
		"authors":   "LeCun, Bengio",
		"year":      "2015",
		"citations": "lots",
	})
	assert.Equal(t, 1, paper.ID)
	assert.Equal(t, "Deep Learning", paper.Title)
	assert.Equal(t, []string{"LeCun", "Bengio"}, paper.Authors)
	assert.Equal(t, 2015, paper.Year)
	assert.Equal(t, 0, paper.Citations)
	assert.True(t, strings.HasPrefix(paper.PDFURL, "/uploads/pdfs/paper-"))

	rec, env := perform(t, router, httptest.NewRequest(http.MethodGet, "/api/papers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc model.PapersDocument
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, 1, doc.TotalCount)
	require.Len(t, doc.Papers, 1)

	rec, _ = perform(t, router, httptest.NewRequest(http.MethodGet, paper.PDFURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, samplePDF, rec.Body.Bytes())
}

func TestUploadRejectsNonPDF(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := perform(t, router, uploadRequest(t, "pdf", map[string][]byte{"notes.txt": []byte("hello")}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeUploadRejected, env.Code)
}

func TestUploadWithoutFile(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := perform(t, router, uploadRequest(t, "other", nil, map[string]string{"title": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)
}

func TestBatchUploadIsolatesFailures(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := perform(t, router, uploadRequest(t, "pdfs", map[string][]byte{
		"good.pdf": samplePDF,
		"bad.pdf":  []byte("not a pdf"),
	}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []struct {
			Success  bool   `json:"success"`
			Filename string `json:"filename"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Results, 2)

	ok := 0
	for _, r := range body.Results {
		if r.Success {
			ok++
		} else {
			assert.Equal(t, "bad.pdf", r.Filename)
		}
	}
	assert.Equal(t, 1, ok)
}

func withMaxFileSizeMB(mb int) func(*config.Config) {
	return func(cfg *config.Config) { cfg.Upload.MaxFileSizeMB = mb }
}

// paddedPDF is a valid-looking PDF of exactly n bytes.
func paddedPDF(n int) []byte {
	data := make([]byte, 0, n)
	data = append(data, samplePDF...)
	return append(data, bytes.Repeat([]byte{' '}, n-len(samplePDF))...)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	router, app := newTestRouter(t, withMaxFileSizeMB(1))

	rec, env := perform(t, router, uploadRequest(t, "pdf", map[string][]byte{"big.pdf": paddedPDF(1<<20 + 512<<10)}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeUploadRejected, env.Code)
	assert.Contains(t, env.Message, "exceeds 1 MB")

	rec, env = perform(t, router, uploadRequest(t, "pdf", map[string][]byte{"huge.pdf": paddedPDF(3 << 20)}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeUploadRejected, env.Code)

	doc, err := app.Library.List()
	require.NoError(t, err)
	assert.Empty(t, doc.Papers)
}

func TestBatchUploadRejectsOversizedItem(t *testing.T) {
	router, _ := newTestRouter(t, withMaxFileSizeMB(1))

	rec, env := perform(t, router, uploadRequest(t, "pdfs", map[string][]byte{
		"small.pdf": samplePDF,
		"big.pdf":   paddedPDF(1<<20 + 1),
	}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []struct {
			Success  bool   `json:"success"`
			Filename string `json:"filename"`
			Error    string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Results, 2)

	ok := 0
	for _, r := range body.Results {
		if r.Success {
			ok++
			continue
		}
		assert.Equal(t, "big.pdf", r.Filename)
		assert.Contains(t, r.Error, "exceeds 1 MB")
	}
	assert.Equal(t, 1, ok)
}

func TestUpdateDeleteAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	paper := uploadOne(t, router, map[string]string{"title": "Old"})

	req := httptest.NewRequest(http.MethodPut, "/api/papers/1", strings.NewReader(`{"title":"New","year":2020}`))
	req.Header.Set("Content-Type", "application/json")
	rec, env := perform(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Paper
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, 2020, updated.Year)
	assert.Equal(t, paper.ID, updated.ID)

	rec, _ = perform(t, router, httptest.NewRequest(http.MethodDelete, "/api/papers/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodDelete, "/api/papers/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodePaperNotFound, env.Code)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodDelete, "/api/papers/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)
}

func TestSearch(t *testing.T) {
	router, _ := newTestRouter(t)
	uploadOne(t, router, map[string]string{"title": "Graph Networks", "year": "2019", "authors": "Battaglia"})
	uploadOne(t, router, map[string]string{"title": "Attention", "year": "2017", "authors": "Vaswani"})

	rec, env := perform(t, router, httptest.NewRequest(http.MethodGet, "/api/search?q=graph", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Papers     []model.Paper `json:"papers"`
		TotalCount int           `json:"totalCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "Graph Networks", result.Papers[0].Title)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodGet, "/api/search?year=2017", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "Attention", result.Papers[0].Title)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodGet, "/api/search?year=recent", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)
}

func TestStats(t *testing.T) {
	router, _ := newTestRouter(t)
	uploadOne(t, router, map[string]string{"title": "A", "year": "2020"})

	rec, env := perform(t, router, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalPapers)
}

func TestOptionalFeaturesReportNotConfigured(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := perform(t, router, httptest.NewRequest(http.MethodGet, "/api/activity", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, response.CodeNotConfigured, env.Code)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodPost, "/api/sync/papers/1", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, response.CodeNotConfigured, env.Code)

	rec, env = perform(t, router, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Backend    string `json:"backend"`
		Configured bool   `json:"configured"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "github", status.Backend)
	assert.False(t, status.Configured)
}

func TestHealthzReportsDisabledDependencies(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Dependencies map[string]struct {
			OK       bool `json:"ok"`
			Disabled bool `json:"disabled"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Dependencies["storage"].OK)
	assert.True(t, body.Dependencies["mysql"].Disabled)
	assert.True(t, body.Dependencies["redis"].Disabled)
	assert.True(t, body.Dependencies["rabbitmq"].Disabled)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	uploadOne(t, router, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "litman_papers_uploaded_total")
}

func TestNoRouteServesFrontendButNotAPI(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "library")

	rec, env := perform(t, router, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeNotFound, env.Code)
}
