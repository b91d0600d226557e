package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncJobsStarted()
	m.IncJobsCompleted("ready")
	m.IncStageFailed("unpack", "tool_timeout")
	m.ObserveStageDuration("unpack", 1.5)
	m.IncMirrorUploads("ok")
	m.IncRecordsSwept(3)
	m.IncWorkspacesReclaimed("ok")
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("back")
	m.IncJobsStarted()
	m.IncJobsCompleted("ready")
	m.IncStageFailed("sign", "tool_failed")
	m.ObserveStageDuration("sign", 2.0)
	m.IncMirrorUploads("failed")
	m.IncRecordsSwept(2)
	m.IncWorkspacesReclaimed("retried")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "back_jobs_started_total", nil) {
		t.Fatalf("expected jobs_started metric")
	}
	if !hasMetric(families, "back_jobs_completed_total", map[string]string{"status": "ready"}) {
		t.Fatalf("expected jobs_completed metric")
	}
	if !hasMetric(families, "back_stage_failures_total", map[string]string{"stage": "sign", "kind": "tool_failed"}) {
		t.Fatalf("expected stage_failures metric")
	}
	if !hasMetric(families, "back_stage_duration_seconds", map[string]string{"stage": "sign"}) {
		t.Fatalf("expected stage_duration metric")
	}
	if !hasMetric(families, "back_mirror_uploads_total", map[string]string{"status": "failed"}) {
		t.Fatalf("expected mirror_uploads metric")
	}
	if !hasMetric(families, "back_records_swept_total", nil) {
		t.Fatalf("expected records_swept metric")
	}
}

func TestGatewayMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewGatewayProm("back")
	m.ObserveRequest("GET", "/api/health", "200", 0.01)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "back_http_requests_total", map[string]string{"method": "GET", "route": "/api/health", "status": "200"}) {
		t.Fatalf("expected http_requests metric")
	}
	if !hasMetric(families, "back_http_request_duration_seconds", map[string]string{"method": "GET", "route": "/api/health"}) {
		t.Fatalf("expected http_request_duration metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("back")
	m.IncJobsStarted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
