package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/model"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.ObserveBoundary("rdof", model.BoundaryResult{Status: model.BoundaryOK})
	m.ObserveBoundary("rdof", model.BoundaryResult{Status: model.BoundaryOK})
	m.ObserveBoundary("rdof", model.BoundaryResult{Status: model.BoundaryErrored})
	m.ObserveStage("rdof", model.StageFetchingFeatures, 2*time.Second)
	m.ObserveBatch("rdof", model.RunStatusPartial)

	assert.InDelta(t, 2, testutil.ToFloat64(m.boundaries.WithLabelValues("rdof", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.boundaries.WithLabelValues("rdof", "errored")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batches.WithLabelValues("rdof", "partial")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.stages))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveBatch("clarity", model.RunStatusComplete)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `fiberbom_batches_total{status="complete",variant="clarity"} 1`)
}
