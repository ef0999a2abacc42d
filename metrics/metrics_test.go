package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmission struct{}

func (fakeAdmission) Outstanding() int { return 2 }
func (fakeAdmission) ActiveActors() int { return 3 }
func (fakeAdmission) Capacity() int { return 30 }

func TestPipelineCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PipelineStarted()
	m.PipelineStarted()
	m.PipelineFinished(ResultCompleted)
	m.Rejected(ResultBusy)
	m.UploadAttempt(AttemptRetry)
	m.UploadAttempt(AttemptOK)
	m.Uploaded(1024)
	m.ChunksProduced(3)
	m.ObserveStage("uploading", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelinesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelinesTotal.WithLabelValues(ResultCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelinesTotal.WithLabelValues(ResultBusy)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadAttempts.WithLabelValues(AttemptRetry)))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.UploadBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Chunks))
}

func TestHandlerExposesAdmission(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.WatchAdmission(fakeAdmission{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "splitsend_tickets_outstanding 2")
	assert.Contains(t, string(body), "splitsend_actors_active 3")
	assert.Contains(t, string(body), "splitsend_tickets_capacity 30")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PipelineStarted()
		m.PipelineFinished(ResultFailed)
		m.UploadAttempt(AttemptFatal)
		m.ObserveStage("splitting", time.Second)
	})
}
