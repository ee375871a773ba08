package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/config"
	"github.com/sells-group/fiber-bom/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, MinBoundaries: 5})

	snap := &MetricsSnapshot{
		RunsTotal:           10,
		RunsComplete:        9,
		RunsPartial:         1,
		BoundariesSucceeded: 95,
		BoundariesFailed:    5,
		BoundaryFailRate:    0.05,
		LookbackHours:       24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_BoundaryFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, MinBoundaries: 5})

	failing := []RunRef{
		{ID: "r1", Variant: "rdof", Status: model.RunStatusPartial, Boundaries: 10, Failed: 6},
		{ID: "r2", Variant: "clarity", Status: model.RunStatusPartial, Boundaries: 5, Failed: 2},
	}
	snap := &MetricsSnapshot{
		RunsTotal:           3,
		RunsPartial:         3,
		BoundariesSucceeded: 12,
		BoundariesFailed:    8,
		BoundaryFailRate:    0.4,
		FailedByVariant:     map[string]int{"rdof": 6, "clarity": 2, "fortcollins": 0},
		FailingRuns:         failing,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	got := alerts[0]
	assert.Equal(t, AlertBoundaryFailureRate, got.Type)
	assert.Equal(t, "high", got.Severity)
	assert.Contains(t, got.Message, "40.0%")
	assert.Contains(t, got.Message, "8 of 20 boundaries")
	assert.Equal(t, []string{"clarity", "rdof"}, got.Variants)
	assert.Equal(t, failing, got.Runs)
	assert.Equal(t, 8, got.BoundariesFailed)
	assert.Equal(t, 12, got.BoundariesSucceeded)
	assert.InDelta(t, 0.4, got.FailureRate, 1e-9)
	assert.InDelta(t, 0.10, got.Threshold, 1e-9)
	assert.Equal(t, 24, got.WindowHours)
}

func TestAlerter_Evaluate_RunFailed(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.9, MinBoundaries: 5})

	snap := &MetricsSnapshot{
		RunsTotal:  5,
		RunsFailed: 2,
		FailingRuns: []RunRef{
			{ID: "r1", Variant: "rdof", Status: model.RunStatusFailed, Boundaries: 3, Failed: 3},
			{ID: "r2", Variant: "rdof", Status: model.RunStatusPartial, Boundaries: 3, Failed: 1},
			{ID: "r3", Variant: "clarity", Status: model.RunStatusFailed, Boundaries: 1, Failed: 1},
		},
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	got := alerts[0]
	assert.Equal(t, AlertRunFailed, got.Type)
	assert.Contains(t, got.Message, "2 of 5 BOM batch")
	assert.Equal(t, []string{"clarity", "rdof"}, got.Variants)
	require.Len(t, got.Runs, 2)
	assert.Equal(t, "r1", got.Runs[0].ID)
	assert.Equal(t, "r3", got.Runs[1].ID)
}

func TestAlerter_Evaluate_MinimumBoundariesRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, MinBoundaries: 5})

	// Only 3 finished boundaries, below the minimum for a rate alert.
	snap := &MetricsSnapshot{
		RunsTotal:           1,
		RunsPartial:         1,
		BoundariesSucceeded: 1,
		BoundariesFailed:    2,
		BoundaryFailRate:    0.666,
		LookbackHours:       24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.Equal(t, string(alert.Type), r.Header.Get("X-Fiber-Bom-Alert"))
		if alert.Type == AlertBoundaryFailureRate {
			assert.Equal(t, []string{"rdof"}, alert.Variants)
			require.Len(t, alert.Runs, 1)
			assert.Equal(t, "run-7", alert.Runs[0].ID)
			assert.Equal(t, 24, alert.WindowHours)
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{
			Type: AlertBoundaryFailureRate, Severity: "high", Message: "test alert 1",
			Variants: []string{"rdof"}, Runs: []RunRef{{ID: "run-7", Variant: "rdof", Failed: 4}}, WindowHours: 24,
		},
		{Type: AlertRunFailed, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailed, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailed, Message: "test"}})
	assert.Equal(t, 0, sent)
}
