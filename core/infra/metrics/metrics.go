package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the APK pipeline.
type Metrics interface {
	IncJobsStarted()
	IncJobsCompleted(status string)
	IncStageFailed(stage, kind string)
	ObserveStageDuration(stage string, durationSeconds float64)
	IncMirrorUploads(status string)
	IncRecordsSwept(count int)
	IncWorkspacesReclaimed(status string)
}

// GatewayMetrics captures request metrics for the HTTP surface.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncJobsStarted()                      {}
func (Noop) IncJobsCompleted(string)              {}
func (Noop) IncStageFailed(string, string)        {}
func (Noop) ObserveStageDuration(string, float64) {}
func (Noop) IncMirrorUploads(string)              {}
func (Noop) IncRecordsSwept(int)                  {}
func (Noop) IncWorkspacesReclaimed(string)        {}

// NoopGateway implements GatewayMetrics without emitting anything.
type NoopGateway struct{}

func (NoopGateway) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	stageFailed   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	mirrorUploads *prometheus.CounterVec
	recordsSwept  prometheus.Counter
	wsReclaimed   *prometheus.CounterVec
	once          sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Pipeline jobs started",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Pipeline jobs completed by status",
		}, []string{"status"}),
		stageFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage failures by stage and error kind",
		}, []string{"stage", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage duration seconds by stage",
			Buckets:   []float64{.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		mirrorUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_uploads_total",
			Help:      "Remote mirror uploads by status",
		}, []string{"status"}),
		recordsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_swept_total",
			Help:      "Expired artifact records removed by the sweeper",
		}),
		wsReclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspaces_reclaimed_total",
			Help:      "Workspace cleanups by status",
		}, []string{"status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.jobsStarted, p.jobsCompleted, p.stageFailed,
			p.stageDuration, p.mirrorUploads, p.recordsSwept, p.wsReclaimed)
	})
}

func (p *Prom) IncJobsStarted() {
	p.jobsStarted.Inc()
}

func (p *Prom) IncJobsCompleted(status string) {
	p.jobsCompleted.WithLabelValues(status).Inc()
}

func (p *Prom) IncStageFailed(stage, kind string) {
	p.stageFailed.WithLabelValues(stage, kind).Inc()
}

func (p *Prom) ObserveStageDuration(stage string, durationSeconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

func (p *Prom) IncMirrorUploads(status string) {
	p.mirrorUploads.WithLabelValues(status).Inc()
}

func (p *Prom) IncRecordsSwept(count int) {
	p.recordsSwept.Add(float64(count))
}

func (p *Prom) IncWorkspacesReclaimed(status string) {
	p.wsReclaimed.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
