package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragengine"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	retrievalHits    *prometheus.CounterVec
	noContextTotal   *prometheus.CounterVec
	citations        *prometheus.HistogramVec
	webSources       *prometheus.HistogramVec
	guardrailTotal   *prometheus.CounterVec
	streamEventTotal *prometheus.CounterVec

	upstreamRetries *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Completed chat turns by endpoint and response mode.",
		},
		[]string{"service", "endpoint", "mode"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "endpoint"},
	)
	retrievalHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_hit_total",
			Help:      "Turns answered from at least one cited document fragment.",
		},
		[]string{"service", "endpoint"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Turns where retrieval produced no citations.",
		},
		[]string{"service", "endpoint"},
	)
	citations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "citations",
			Help:      "Distribution of citations per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	webSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "sources",
			Help:      "Distribution of web sources per web-grounded turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
		[]string{"service", "endpoint"},
	)
	guardrailTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "verdicts_total",
			Help:      "Guardrail verdicts by stage, status and category.",
		},
		[]string{"service", "stage", "status", "category"},
	)
	streamEventTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Streamed events by type.",
		},
		[]string{"service", "type"},
	)
	upstreamRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried upstream calls by upstream and operation.",
		},
		[]string{"service", "upstream", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "upstream", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		turnDuration,
		retrievalHits,
		noContextTotal,
		citations,
		webSources,
		guardrailTotal,
		streamEventTotal,
		upstreamRetries,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		service:          service,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		turnsTotal:       turnsTotal,
		turnDuration:     turnDuration,
		retrievalHits:    retrievalHits,
		noContextTotal:   noContextTotal,
		citations:        citations,
		webSources:       webSources,
		guardrailTotal:   guardrailTotal,
		streamEventTotal: streamEventTotal,
		upstreamRetries:  upstreamRetries,
		breakerState:     breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/chats/"):
		return "/v1/chats/{chat_id}"
	default:
		return path
	}
}

// TurnObservation summarizes one finished chat turn.
type TurnObservation struct {
	Mode         string
	Citations    int
	WebSources   int
	Duration     time.Duration
	InputStatus  string
	InputCause   string
	OutputStatus string
	OutputCause  string
}

func (m *HTTPServerMetrics) RecordTurn(service, endpoint string, obs TurnObservation) {
	mode := obs.Mode
	if mode == "" {
		mode = "unknown"
	}
	m.turnsTotal.WithLabelValues(service, endpoint, mode).Inc()
	m.turnDuration.WithLabelValues(service, endpoint).Observe(obs.Duration.Seconds())

	if mode != "blocked" {
		m.citations.WithLabelValues(service, endpoint).Observe(float64(obs.Citations))
		if obs.Citations > 0 {
			m.retrievalHits.WithLabelValues(service, endpoint).Inc()
		} else {
			m.noContextTotal.WithLabelValues(service, endpoint).Inc()
		}
	}
	if mode == "web" {
		m.webSources.WithLabelValues(service, endpoint).Observe(float64(obs.WebSources))
	}
	if obs.InputStatus != "" {
		m.RecordGuardrail(service, "input", obs.InputStatus, obs.InputCause)
	}
	if obs.OutputStatus != "" {
		m.RecordGuardrail(service, "output", obs.OutputStatus, obs.OutputCause)
	}
}

func (m *HTTPServerMetrics) RecordGuardrail(service, stage, status, category string) {
	if category == "" {
		category = "none"
	}
	m.guardrailTotal.WithLabelValues(service, stage, status, category).Inc()
}

func (m *HTTPServerMetrics) RecordStreamEvent(service, eventType string) {
	m.streamEventTotal.WithLabelValues(service, eventType).Inc()
}

// RetryAttempt counts one retried upstream call.
func (m *HTTPServerMetrics) RetryAttempt(upstream, operation string) {
	m.upstreamRetries.WithLabelValues(m.service, upstream, operation).Inc()
}

// BreakerStateChanged records the new state of an upstream circuit breaker.
func (m *HTTPServerMetrics) BreakerStateChanged(upstream, operation, state string) {
	m.breakerState.WithLabelValues(m.service, upstream, operation).Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
