package syncer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"literature-manager/internal/model"
	"literature-manager/internal/search"
)

func writeEnvelope(w http.ResponseWriter, status, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": "ok", "data": data})
}

func TestServerSyncPaperPostsMultipart(t *testing.T) {
	var form map[string]string
	var pdf []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f, hdr, err := r.FormFile("pdf")
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "paper.pdf", hdr.Filename)
		pdf, _ = io.ReadAll(f)
		writeEnvelope(w, http.StatusOK, 0, model.Paper{ID: 12, Title: form["title"]})
	}))
	defer srv.Close()

	s := NewServerSyncer(srv.URL, nil)
	created, err := s.SyncPaper(context.Background(),
		model.Paper{Title: "Deep Learning", Authors: []string{"A", "B"}, Year: 2020},
		&File{Name: "paper.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	assert.Equal(t, 12, created.ID)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, "Deep Learning", form["title"])
	assert.Equal(t, "A,B", form["authors"])
	assert.Equal(t, "2020", form["year"])
	assert.Equal(t, "Unknown Journal", form["journal"])
	assert.Equal(t, "General", form["researchArea"])
	assert.Equal(t, "Experimental", form["methodology"])
	assert.Equal(t, "Empirical", form["studyType"])
	assert.Equal(t, "0", form["citations"])
}

func TestServerSyncPaperLeavesEmptyTitleToServer(t *testing.T) {
	var title string
	var sent bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, sent = r.MultipartForm.Value["title"]
		title = r.FormValue("title")
		writeEnvelope(w, http.StatusOK, 0, model.Paper{ID: 1, Title: "attention-is-all-you-need"})
	}))
	defer srv.Close()

	s := NewServerSyncer(srv.URL, nil)
	created, err := s.SyncPaper(context.Background(), model.Paper{},
		&File{Name: "attention-is-all-you-need.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	assert.True(t, sent)
	assert.Empty(t, title)
	assert.Equal(t, "attention-is-all-you-need", created.Title)
}

func TestServerEnvelopeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/papers/3":
			writeEnvelope(w, http.StatusNotFound, codeNotFound, nil)
		default:
			writeEnvelope(w, http.StatusInternalServerError, 50000, nil)
		}
	}))
	defer srv.Close()
	s := NewServerSyncer(srv.URL, nil)
	ctx := context.Background()

	_, err := s.DeletePaper(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadSharedData(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 50000, remote.Code)
}

func TestServerSearchAndUpdate(t *testing.T) {
	var gotQuery string
	var gotPatch map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/search":
			gotQuery = r.URL.RawQuery
			writeEnvelope(w, http.StatusOK, 0, map[string]any{
				"papers": []model.Paper{{ID: 1, Title: "Graph"}}, "totalCount": 1,
			})
		case r.URL.Path == "/api/papers/1" && r.Method == http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&gotPatch)
			writeEnvelope(w, http.StatusOK, 0, model.Paper{ID: 1, Title: "Renamed"})
		}
	}))
	defer srv.Close()
	s := NewServerSyncer(srv.URL, nil)
	ctx := context.Background()

	papers, err := s.Search(ctx, search.Filter{Search: "graph", Year: 2020})
	require.NoError(t, err)
	assert.Len(t, papers, 1)
	assert.Equal(t, "q=graph&year=2020", gotQuery)

	updated, err := s.UpdatePaper(ctx, 1, map[string]any{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "Renamed", gotPatch["title"])
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewServerSyncer(url, nil)
	_, err := s.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.NoError(t, s.SyncAllData(context.Background(), nil))
	assert.False(t, NewServerSyncer("", nil).IsConfigured())
}
