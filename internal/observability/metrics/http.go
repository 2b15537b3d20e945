package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pipelineRequestsTotal *prometheus.CounterVec
	pipelineDuration      *prometheus.HistogramVec
	stageDuration         *prometheus.HistogramVec
	dependencyRetries     *prometheus.CounterVec
	retrievalHitTotal     *prometheus.CounterVec
	noContextTotal        *prometheus.CounterVec
	degradedTotal         *prometheus.CounterVec
	retrievedChunks       *prometheus.HistogramVec
	judgeFallbacksTotal   *prometheus.CounterVec
	answerConfidence      *prometheus.HistogramVec
	correctionAttempts    *prometheus.HistogramVec
	unsupportedClaims     *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pipelineRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total completed pipeline requests by endpoint.",
		},
		[]string{"service", "endpoint"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	dependencyRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "dependency_retries_total",
			Help:      "Total retried outbound dependency calls by operation.",
		},
		[]string{"service", "operation"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "retrieval_hit_total",
			Help:      "Total requests with at least one retrieved source.",
		},
		[]string{"service", "endpoint"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "no_context_total",
			Help:      "Total requests without retrieved sources.",
		},
		[]string{"service", "endpoint"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "degraded_total",
			Help:      "Total requests served with degraded retrieval.",
		},
		[]string{"service", "endpoint"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "pipeline",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "endpoint"},
	)
	judgeFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "judge",
			Name:      "fallbacks_total",
			Help:      "Total judge failures that fell back to heuristics by stage.",
		},
		[]string{"service", "stage"},
	)
	answerConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "verify",
			Name:      "answer_confidence",
			Help:      "Distribution of verified answer confidence scores.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	correctionAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "verify",
			Name:      "correction_attempts",
			Help:      "Distribution of corrective retrieval attempts per answer.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	unsupportedClaims := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "verify",
			Name:      "unsupported_claims",
			Help:      "Distribution of unsupported claims per verified answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		pipelineRequestsTotal,
		pipelineDuration,
		stageDuration,
		dependencyRetries,
		retrievalHitTotal,
		noContextTotal,
		degradedTotal,
		retrievedChunks,
		judgeFallbacksTotal,
		answerConfidence,
		correctionAttempts,
		unsupportedClaims,
	)

	return &PipelineMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		pipelineRequestsTotal: pipelineRequestsTotal,
		pipelineDuration:      pipelineDuration,
		stageDuration:         stageDuration,
		dependencyRetries:     dependencyRetries,
		retrievalHitTotal:     retrievalHitTotal,
		noContextTotal:        noContextTotal,
		degradedTotal:         degradedTotal,
		retrievedChunks:       retrievedChunks,
		judgeFallbacksTotal:   judgeFallbacksTotal,
		answerConfidence:      answerConfidence,
		correctionAttempts:    correctionAttempts,
		unsupportedClaims:     unsupportedClaims,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *PipelineMetrics) RecordRetrieval(service, endpoint string, sourceCount int, degraded bool, duration time.Duration) {
	m.pipelineRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.retrievedChunks.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	m.pipelineDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if degraded {
		m.degradedTotal.WithLabelValues(service, endpoint).Inc()
	}
	if sourceCount > 0 {
		m.retrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.noContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *PipelineMetrics) RecordJudgeFallback(service, stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.judgeFallbacksTotal.WithLabelValues(service, stage).Inc()
}

func (m *PipelineMetrics) ObserveStage(service, stage string, duration time.Duration) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordDependencyRetry(service, operation string) {
	if operation == "" {
		operation = "unknown"
	}
	m.dependencyRetries.WithLabelValues(service, operation).Inc()
}

func (m *PipelineMetrics) RecordVerification(service string, confidence float64, attempts, unsupported int) {
	m.answerConfidence.WithLabelValues(service).Observe(confidence)
	m.correctionAttempts.WithLabelValues(service).Observe(float64(attempts))
	m.unsupportedClaims.WithLabelValues(service).Observe(float64(unsupported))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
