// Package monitoring raises webhook alerts for sync sessions and the session history.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/config"
	"github.com/sells-group/plansync/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailed        AlertType = "sync_failed"
	AlertSourceUnavailable AlertType = "source_unavailable"
	AlertPendingReview     AlertType = "pending_review"
	AlertRegionErrors      AlertType = "region_errors"
	AlertSyncFailureRate   AlertType = "sync_failure_rate"
	AlertNoRecentSync      AlertType = "no_recent_sync"
)

// minFinishedForRate is the number of finished sessions needed before the
// failure rate is evaluated.
const minFinishedForRate = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates sessions and history snapshots and sends alerts via webhook.
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

// EvaluateSession returns the alerts raised by one finished session.
func (a *Alerter) EvaluateSession(sess *model.Session) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if sess.Status == model.SessionFailed {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailed,
			Severity: "high",
			Message:  fmt.Sprintf("Sync session %s (%s) failed: %s", sess.ID, sess.Mode, sess.Error),
			Details: map[string]any{
				"session_id": sess.ID,
				"mode":       string(sess.Mode),
				"error":      sess.Error,
			},
			Timestamp: now,
		})
		return alerts
	}

	if sess.Provenance == model.ProvenanceEstimated {
		alerts = append(alerts, Alert{
			Type:     AlertSourceUnavailable,
			Severity: "medium",
			Message: fmt.Sprintf("Plan source unavailable for all %d regions in session %s; results are estimated",
				len(sess.RegionsProcessed), sess.ID),
			Details: map[string]any{
				"session_id": sess.ID,
				"regions":    sess.RegionsProcessed,
			},
			Timestamp: now,
		})
	}

	if len(sess.Errors) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertRegionErrors,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d region error(s) in session %s", len(sess.Errors), sess.ID),
			Details:   map[string]any{"session_id": sess.ID, "errors": sess.Errors},
			Timestamp: now,
		})
	}

	if n := len(sess.NewPlans); n > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertPendingReview,
			Severity:  "low",
			Message:   fmt.Sprintf("%d new plan(s) from session %s await manual review", n, sess.ID),
			Details:   map[string]any{"session_id": sess.ID, "new_plans": n},
			Timestamp: now,
		})
	}

	return alerts
}

// Evaluate checks a history snapshot against the configured thresholds.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.SessionsTotal == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertNoRecentSync,
			Severity:  "high",
			Message:   fmt.Sprintf("No sync session started in last %dh", snap.LookbackHours),
			Details:   map[string]any{"lookback_hours": snap.LookbackHours},
			Timestamp: now,
		})
		return alerts
	}

	finished := snap.SessionsCompleted + snap.SessionsFailed
	if finished >= minFinishedForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sync failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.SessionsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.SessionsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// NotifySession evaluates a finished session and sends its alerts. It has the
// shape of a sync finish hook.
func (a *Alerter) NotifySession(ctx context.Context, sess *model.Session) {
	a.SendAlerts(ctx, a.EvaluateSession(sess))
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
