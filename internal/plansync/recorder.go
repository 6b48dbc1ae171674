package plansync

import (
	"sync"
	"time"

	"github.com/sells-group/plansync/internal/model"
)

// Recorder accumulates one run's outcomes into a Session.
type Recorder struct {
	mu       sync.Mutex
	sess     model.Session
	warned   map[string]bool
	observed []model.Provenance
}

// NewRecorder starts a running session.
func NewRecorder(id string, mode model.SessionMode, startedAt time.Time) *Recorder {
	return &Recorder{
		sess: model.Session{
			ID:               id,
			Mode:             mode,
			StartedAt:        startedAt.UTC(),
			Status:           model.SessionRunning,
			RegionsProcessed: []string{},
			NewPlans:         []model.ChangeRecord{},
			UpdatedPlans:     []model.ChangeRecord{},
			RemovedPlans:     []model.ChangeRecord{},
			Warnings:         []string{},
			Errors:           []string{},
			Provenance:       model.ProvenanceNone,
		},
		warned: make(map[string]bool),
	}
}

// RegionDone records a region that contributed records with the given provenance.
func (r *Recorder) RegionDone(regionID string, prov model.Provenance, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess.RegionsProcessed = append(r.sess.RegionsProcessed, regionID)
	r.sess.TotalPlansFound += records
	r.observed = append(r.observed, prov)
}

// Warn adds msg unless an identical warning was already recorded.
func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warned[msg] {
		return
	}
	r.warned[msg] = true
	r.sess.Warnings = append(r.sess.Warnings, msg)
}

// Error records a region-scoped error. Errors do not fail the run.
func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess.Errors = append(r.sess.Errors, msg)
}

// SetUnique records the deduplicated record count.
func (r *Recorder) SetUnique(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess.UniquePlans = n
}

// SetChanges records the change set.
func (r *Recorder) SetChanges(cs model.ChangeSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess.NewPlans = nonNil(cs.New)
	r.sess.UpdatedPlans = nonNil(cs.Updated)
	r.sess.RemovedPlans = nonNil(cs.Removed)
}

// Complete ends the session successfully and returns a copy of it.
func (r *Recorder) Complete(at time.Time) *model.Session {
	return r.finish(model.SessionCompleted, "", at)
}

// Fail ends the session with the captured error and returns a copy of it.
func (r *Recorder) Fail(err error, at time.Time) *model.Session {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return r.finish(model.SessionFailed, msg, at)
}

// Snapshot returns a copy of the session in its current state.
func (r *Recorder) Snapshot() *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Recorder) finish(status model.SessionStatus, errMsg string, at time.Time) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sess.Status.Terminal() {
		done := at.UTC()
		r.sess.Status = status
		r.sess.Error = errMsg
		r.sess.CompletedAt = &done
		r.sess.Provenance = model.AggregateProvenance(r.observed)
	}
	return r.copyLocked()
}

func (r *Recorder) copyLocked() *model.Session {
	s := r.sess
	s.RegionsProcessed = append([]string{}, r.sess.RegionsProcessed...)
	s.Warnings = append([]string{}, r.sess.Warnings...)
	s.Errors = append([]string{}, r.sess.Errors...)
	s.NewPlans = append([]model.ChangeRecord{}, r.sess.NewPlans...)
	s.UpdatedPlans = append([]model.ChangeRecord{}, r.sess.UpdatedPlans...)
	s.RemovedPlans = append([]model.ChangeRecord{}, r.sess.RemovedPlans...)
	if r.sess.CompletedAt != nil {
		done := *r.sess.CompletedAt
		s.CompletedAt = &done
	}
	if !s.Status.Terminal() {
		s.Provenance = model.AggregateProvenance(r.observed)
	}
	return &s
}

func nonNil(c []model.ChangeRecord) []model.ChangeRecord {
	if c == nil {
		return []model.ChangeRecord{}
	}
	return c
}
