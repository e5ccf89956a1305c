package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestNewUsesIsolatedRegistry(t *testing.T) {
	a, b := New(), New()
	a.RecordSignatureSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.signaturesSkipped))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.signaturesSkipped))
}

func TestRecordCorrection(t *testing.T) {
	m := New()
	m.RecordCorrection("ok", 200*time.Millisecond)
	m.RecordCorrection("geometry_error", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrections.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrections.WithLabelValues("geometry_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.correctionDuration))
}

func TestRecordRequestStatusClass(t *testing.T) {
	m := New()
	m.RecordRequest("GET", 200)
	m.RecordRequest("POST", 422)
	m.RecordRequest("POST", 404)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "4xx")))
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.RecordFilterRun("full")
	m.RecordFilterRun("reduced")
	m.RecordDocumentSigned(time.Second)
	m.SetActiveSessions(3)

	s := m.Snapshot()
	assert.Equal(t, 2.0, s.Counters["ddtscan_filter_runs_total"])
	assert.Equal(t, 1.0, s.Counters["ddtscan_documents_signed_total"])
	assert.Equal(t, 1.0, s.Counters["ddtscan_assembly_duration_seconds_count"])
	assert.Equal(t, 3.0, s.Counters["ddtscan_active_sessions"])
	_, hasGo := s.Counters["go_goroutines"]
	assert.False(t, hasGo)
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.RecordArchiveExport("s3", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ddtscan_archive_exports_total{backend="s3",outcome="error"} 1`))
}
