package model

import "time"

// ChangeKind classifies a ChangeRecord.
type ChangeKind string

const (
	ChangeNew     ChangeKind = "new"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// ChangeRecord is one difference between the fresh unique set and the
// catalog snapshot. EntryID is zero for new plans.
type ChangeRecord struct {
	Kind         ChangeKind    `json:"kind"`
	EntryID      int64         `json:"entry_id,omitempty"`
	ProviderName string        `json:"provider_name"`
	PlanName     string        `json:"plan_name"`
	OldRate      *float64      `json:"old_rate,omitempty"`
	NewRate      *float64      `json:"new_rate,omitempty"`
	Note         string        `json:"note,omitempty"`
	Source       *SourceRecord `json:"source,omitempty"`
}

// ChangeSet groups change records by kind.
type ChangeSet struct {
	New     []ChangeRecord `json:"new"`
	Updated []ChangeRecord `json:"updated"`
	Removed []ChangeRecord `json:"removed"`
}

// Total returns the number of change records across all kinds.
func (c ChangeSet) Total() int {
	return len(c.New) + len(c.Updated) + len(c.Removed)
}

// All returns every record, new first, then updated, then removed.
func (c ChangeSet) All() []ChangeRecord {
	out := make([]ChangeRecord, 0, c.Total())
	out = append(out, c.New...)
	out = append(out, c.Updated...)
	out = append(out, c.Removed...)
	return out
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionMode records whether a run was allowed to write to the catalog.
type SessionMode string

const (
	ModePreview SessionMode = "preview"
	ModeApply   SessionMode = "apply"
)

// Session is the externally visible record of one synchronization run.
type Session struct {
	ID               string         `json:"id"`
	Mode             SessionMode    `json:"mode"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Status           SessionStatus  `json:"status"`
	RegionsProcessed []string       `json:"regions_processed"`
	TotalPlansFound  int            `json:"total_plans_found"`
	UniquePlans      int            `json:"unique_plans"`
	NewPlans         []ChangeRecord `json:"new_plans"`
	UpdatedPlans     []ChangeRecord `json:"updated_plans"`
	RemovedPlans     []ChangeRecord `json:"removed_plans"`
	Warnings         []string       `json:"warnings"`
	Errors           []string       `json:"errors"`
	Provenance       Provenance     `json:"provenance"`
	Error            string         `json:"error,omitempty"`
}

// Changes returns the session's change lists as a ChangeSet.
func (s *Session) Changes() ChangeSet {
	return ChangeSet{New: s.NewPlans, Updated: s.UpdatedPlans, Removed: s.RemovedPlans}
}
