package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/model"
)

// historyLimit caps the sessions read per snapshot.
const historyLimit = 1000

// MetricsSnapshot summarizes the session log over a lookback window.
type MetricsSnapshot struct {
	SessionsTotal     int     `json:"sessions_total"`
	SessionsCompleted int     `json:"sessions_completed"`
	SessionsFailed    int     `json:"sessions_failed"`
	SessionsRunning   int     `json:"sessions_running"`
	FailRate          float64 `json:"fail_rate"`
	EstimatedOnly     int     `json:"estimated_only"`
	PendingReview     int     `json:"pending_review"`
	Updated           int     `json:"updated"`
	Removed           int     `json:"removed"`

	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	LookbackHours   int        `json:"lookback_hours"`
	CollectedAt     time.Time  `json:"collected_at"`
}

// SessionLister abstracts the session log query used by the collector.
type SessionLister interface {
	ListSessions(ctx context.Context, filter catalog.SessionFilter) ([]catalog.SessionSummary, error)
}

// Collector gathers history metrics from the session log.
type Collector struct {
	sessions SessionLister
}

// NewCollector creates a new metrics collector.
func NewCollector(sessions SessionLister) *Collector {
	return &Collector{sessions: sessions}
}

// Collect summarizes the sessions started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	list, err := c.sessions.ListSessions(ctx, catalog.SessionFilter{Limit: historyLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	for _, s := range list {
		if s.StartedAt.Before(cutoff) {
			continue
		}
		snap.SessionsTotal++
		switch s.Status {
		case model.SessionCompleted:
			snap.SessionsCompleted++
			if s.CompletedAt != nil && (snap.LastCompletedAt == nil || s.CompletedAt.After(*snap.LastCompletedAt)) {
				done := *s.CompletedAt
				snap.LastCompletedAt = &done
			}
		case model.SessionFailed:
			snap.SessionsFailed++
		default:
			snap.SessionsRunning++
		}
		if s.Provenance == model.ProvenanceEstimated {
			snap.EstimatedOnly++
		}
		snap.PendingReview += s.NewCount
		snap.Updated += s.UpdatedCount
		snap.Removed += s.RemovedCount
	}

	if finished := snap.SessionsCompleted + snap.SessionsFailed; finished > 0 {
		snap.FailRate = float64(snap.SessionsFailed) / float64(finished)
	}
	return snap, nil
}
