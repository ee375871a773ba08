package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/config"
	"github.com/sells-group/fiber-bom/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBoundaryFailureRate AlertType = "boundary_failure_rate"
	AlertRunFailed           AlertType = "run_failed"
)

// Alert is the webhook payload. It names the BOM runs and variants behind
// the breach so the receiver can link straight to the run history.
type Alert struct {
	Type     AlertType `json:"type"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`

	Variants            []string `json:"variants,omitempty"`
	Runs                []RunRef `json:"runs,omitempty"`
	BoundariesFailed    int      `json:"boundaries_failed"`
	BoundariesSucceeded int      `json:"boundaries_succeeded"`
	FailureRate         float64  `json:"failure_rate,omitempty"`
	Threshold           float64  `json:"threshold,omitempty"`
	WindowHours         int      `json:"window_hours"`

	Timestamp time.Time `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and posts alerts to a webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.BoundariesSucceeded + snap.BoundariesFailed
	if finished >= a.cfg.MinBoundaries && finished > 0 && snap.BoundaryFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertBoundaryFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"BOM boundary failure rate %.1f%% exceeds %.1f%% (%d of %d boundaries failed in last %dh)",
				snap.BoundaryFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.BoundariesFailed, finished, snap.LookbackHours,
			),
			Variants:            failingVariants(snap),
			Runs:                snap.FailingRuns,
			BoundariesFailed:    snap.BoundariesFailed,
			BoundariesSucceeded: snap.BoundariesSucceeded,
			FailureRate:         snap.BoundaryFailRate,
			Threshold:           a.cfg.FailureRateThreshold,
			WindowHours:         snap.LookbackHours,
			Timestamp:           now,
		})
	}

	if snap.RunsFailed > 0 {
		var runs []RunRef
		for _, r := range snap.FailingRuns {
			if r.Status == model.RunStatusFailed {
				runs = append(runs, r)
			}
		}
		alerts = append(alerts, Alert{
			Type:                AlertRunFailed,
			Severity:            "medium",
			Message:             fmt.Sprintf("%d of %d BOM batch(es) produced no workbook in last %dh", snap.RunsFailed, snap.RunsTotal, snap.LookbackHours),
			Variants:            variantsOf(runs),
			Runs:                runs,
			BoundariesFailed:    snap.BoundariesFailed,
			BoundariesSucceeded: snap.BoundariesSucceeded,
			WindowHours:         snap.LookbackHours,
			Timestamp:           now,
		})
	}

	return alerts
}

func failingVariants(snap *MetricsSnapshot) []string {
	var out []string
	for v, n := range snap.FailedByVariant {
		if n > 0 {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func variantsOf(runs []RunRef) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range runs {
		if !seen[r.Variant] {
			seen[r.Variant] = true
			out = append(out, r.Variant)
		}
	}
	sort.Strings(out)
	return out
}

// SendAlerts delivers alerts to the configured webhook URL and returns how
// many were accepted.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "alerter"))
	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			log.Error("monitoring: alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Strings("variants", alert.Variants),
				zap.Error(err),
			)
			continue
		}
		log.Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.Int("runs", len(alert.Runs)),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fiber-Bom-Alert", string(alert.Type))

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook answered %d for %s", resp.StatusCode, alert.Type)
	}
	return nil
}
