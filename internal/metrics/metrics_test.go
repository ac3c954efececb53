package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExposed(t *testing.T) {
	PapersUploaded.WithLabelValues("ok").Inc()
	ThumbnailFailures.Inc()
	GitHubRequests.WithLabelValues("PUT", "409").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `litman_papers_uploaded_total{result="ok"}`)
	assert.Contains(t, string(body), "litman_thumbnail_failures_total")
	assert.Contains(t, string(body), `litman_github_requests_total{method="PUT",status="409"}`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestConflictRetryCounter(t *testing.T) {
	before := testutil.ToFloat64(GitHubConflictRetries)
	GitHubConflictRetries.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(GitHubConflictRetries))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}
