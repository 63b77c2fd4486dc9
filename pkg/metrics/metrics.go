// Package metrics exposes Prometheus counters for mining-pipeline stage
// outcomes and harness verdicts, plus an optional HTTP endpoint to scrape
// them. Grounded on kraklabs-cie's pkg/ingestion/metrics.go: package-level
// prometheus.Counter/Histogram fields initialized once via sync.Once and
// registered with prometheus.MustRegister, and on its cmd/cie/index.go's
// promhttp.Handler()-on-a-dedicated-mux wiring for the optional server.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	CandidatesSeen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prbench_candidates_seen_total",
		Help: "Shallow candidates observed by ArchiveIngest.",
	})
	CandidatesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prbench_candidates_rejected_total",
		Help: "Candidates rejected, labeled by reason.",
	}, []string{"reason"})
	CandidatesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prbench_candidates_failed_total",
		Help: "Candidates that failed deep processing, labeled by reason.",
	}, []string{"reason"})
	TasksExported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prbench_tasks_exported_total",
		Help: "Task instances exported, labeled by difficulty.",
	}, []string{"difficulty"})
	DeepProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prbench_deep_processing_seconds",
		Help:    "Wall-clock duration of one candidate's deep-processing session.",
		Buckets: prometheus.DefBuckets,
	})
	HarnessVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prbench_harness_verdicts_total",
		Help: "EvaluationHarness outcomes, labeled by status.",
	}, []string{"status"})
)

// Register installs every collector above with the default Prometheus
// registry. Safe to call more than once; only the first call registers.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CandidatesSeen,
			CandidatesRejected,
			CandidatesFailed,
			TasksExported,
			DeepProcessingDuration,
			HarnessVerdicts,
		)
	})
}

// Serve starts a best-effort /metrics HTTP endpoint on addr in its own
// goroutine. An empty addr disables it. Grounded on cmd/cie/index.go's
// "Start Prometheus metrics endpoint (optional)" block.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}
