// Package metrics provides Prometheus metrics for the literature manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all literature manager metrics.
var Registry = prometheus.NewRegistry()

var (
	// PapersUploaded counts ingest attempts, labelled result=ok|rejected|error.
	PapersUploaded = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "litman_papers_uploaded_total",
		Help: "Total paper uploads by result",
	}, []string{"result"})

	ThumbnailFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "litman_thumbnail_failures_total",
		Help: "Thumbnails that could not be rendered",
	})

	// GitHubRequests counts Contents API calls by method and HTTP status
	// ("error" for transport failures).
	GitHubRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "litman_github_requests_total",
		Help: "GitHub API requests by method and status",
	}, []string{"method", "status"})

	GitHubConflictRetries = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "litman_github_conflict_retries_total",
		Help: "Writes retried after a version conflict",
	})

	SyncOperations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "litman_sync_operations_total",
		Help: "Sync façade operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	PapersTotal = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "litman_papers",
		Help: "Papers in the local collection after the last mutation",
	})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
