package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracesig/internal/logger"
)

var (
	tasksAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracesig",
			Subsystem: "pipeline",
			Name:      "tasks_analyzed_total",
			Help:      "Total number of analysis tasks processed.",
		},
		[]string{"status"},
	)

	linesParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tracesig",
			Subsystem: "parser",
			Name:      "trace_lines_parsed_total",
			Help:      "Total number of trace lines parsed into syscall events.",
		},
	)

	processesReconstructed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tracesig",
			Subsystem: "behavior",
			Name:      "processes_reconstructed_total",
			Help:      "Total number of processes reconstructed from traces.",
		},
	)

	signatureMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracesig",
			Subsystem: "signatures",
			Name:      "matches_total",
			Help:      "Total number of signature matches by signature name.",
		},
		[]string{"signature"},
	)

	alertsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tracesig",
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total number of alerts emitted.",
		},
	)
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(tasksAnalyzed)
	_ = prometheus.Register(linesParsed)
	_ = prometheus.Register(processesReconstructed)
	_ = prometheus.Register(signatureMatches)
	_ = prometheus.Register(alertsEmitted)
}

// TaskAnalyzed records one completed analysis with its outcome status.
func TaskAnalyzed(status string) { tasksAnalyzed.WithLabelValues(status).Inc() }

// LinesParsed adds to the parsed line counter.
func LinesParsed(n int) { linesParsed.Add(float64(n)) }

// ProcessesReconstructed adds to the reconstructed process counter.
func ProcessesReconstructed(n int) { processesReconstructed.Add(float64(n)) }

// SignatureMatched records one match for the named signature.
func SignatureMatched(name string) { signatureMatches.WithLabelValues(name).Inc() }

// AlertEmitted records one emitted alert.
func AlertEmitted() { alertsEmitted.Inc() }

// Serve exposes /metrics on the given address. It blocks, so callers
// run it in a goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server stopped: %v", err)
	}
}
