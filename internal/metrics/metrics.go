package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ddtscan"

type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	requests           *prometheus.CounterVec
	captures           *prometheus.CounterVec
	corrections        *prometheus.CounterVec
	correctionDuration prometheus.Histogram
	filterRuns         *prometheus.CounterVec
	stamps             *prometheus.CounterVec
	signaturesSkipped  prometheus.Counter
	documentsFinalized prometheus.Counter
	documentsSigned    prometheus.Counter
	assemblyDuration   prometheus.Histogram
	batchItems         *prometheus.CounterVec
	archiveExports     *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a metrics set on its own registry, so tests do not share state.
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "captures_total",
			Help: "Raw captures accepted, by source.",
		}, []string{"source"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "corrections_total",
			Help: "Page corrections by outcome.",
		}, []string{"outcome"}),
		correctionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "correction_duration_seconds",
			Help:    "Geometry plus filter time per page.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		filterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filter_runs_total",
			Help: "Filter pipeline runs by the rung that produced the output.",
		}, []string{"rung"}),
		stamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stamps_total",
			Help: "First-page stamps applied, by workflow.",
		}, []string{"workflow"}),
		signaturesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "signatures_skipped_total",
			Help: "Signatures omitted because the image could not be decoded.",
		}),
		documentsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_finalized_total",
			Help: "Capture sessions turned into documents.",
		}),
		documentsSigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_signed_total",
			Help: "Documents committed as signed.",
		}),
		assemblyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "assembly_duration_seconds",
			Help:    "Time to stamp and assemble one artifact.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batch_items_total",
			Help: "Batch signing items by outcome.",
		}, []string{"outcome"}),
		archiveExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "archive_exports_total",
			Help: "Artifact exports by backend and outcome.",
		}, []string{"backend", "outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Capture sessions currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.captures, m.corrections, m.correctionDuration,
		m.filterRuns, m.stamps, m.signaturesSkipped, m.documentsFinalized,
		m.documentsSigned, m.assemblyDuration, m.batchItems,
		m.archiveExports, m.activeSessions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(method string, status int) {
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *Metrics) RecordCapture(source string) {
	m.captures.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordCorrection(outcome string, d time.Duration) {
	m.corrections.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.correctionDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordFilterRun(rung string) {
	m.filterRuns.WithLabelValues(rung).Inc()
}

func (m *Metrics) RecordStamp(workflow string) {
	m.stamps.WithLabelValues(workflow).Inc()
}

func (m *Metrics) RecordSignatureSkipped() {
	m.signaturesSkipped.Inc()
}

func (m *Metrics) RecordDocumentFinalized() {
	m.documentsFinalized.Inc()
}

func (m *Metrics) RecordDocumentSigned(d time.Duration) {
	m.documentsSigned.Inc()
	m.assemblyDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordBatchItem(outcome string) {
	m.batchItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordArchiveExport(backend string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.archiveExports.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type Snapshot struct {
	Uptime   time.Duration      `json:"uptime"`
	Counters map[string]float64 `json:"counters"`
}

// Snapshot sums every ddtscan series by metric name for the JSON status
// endpoint.
func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:   time.Since(m.startTime),
		Counters: make(map[string]float64),
	}

	families, err := m.registry.Gather()
	if err != nil {
		return s
	}
	for _, mf := range families {
		name := mf.GetName()
		if len(name) <= len(namespace) || name[:len(namespace)] != namespace {
			continue
		}
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				s.Counters[name] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				s.Counters[name] += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				s.Counters[name+"_count"] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return s
}

func RecordRequest(method string, status int)    { Default().RecordRequest(method, status) }
func RecordCapture(source string)                { Default().RecordCapture(source) }
func RecordCorrection(o string, d time.Duration) { Default().RecordCorrection(o, d) }
func RecordFilterRun(rung string)                { Default().RecordFilterRun(rung) }
func RecordStamp(workflow string)                { Default().RecordStamp(workflow) }
func RecordSignatureSkipped()                    { Default().RecordSignatureSkipped() }
func RecordDocumentFinalized()                   { Default().RecordDocumentFinalized() }
func RecordDocumentSigned(d time.Duration)       { Default().RecordDocumentSigned(d) }
func RecordBatchItem(outcome string)             { Default().RecordBatchItem(outcome) }
func RecordArchiveExport(b string, ok bool)      { Default().RecordArchiveExport(b, ok) }
func SetActiveSessions(n int)                    { Default().SetActiveSessions(n) }
func GetSnapshot() *Snapshot                     { return Default().Snapshot() }
