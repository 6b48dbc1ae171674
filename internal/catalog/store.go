// Package catalog persists the plan catalog, the provider directory and the sync session log.
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plansync/internal/model"
)

// ErrNotFound is returned when a provider, entry or session does not exist.
var ErrNotFound = eris.New("catalog: not found")

// EntryFilter specifies criteria for listing catalog entries.
type EntryFilter struct {
	Active   *bool  `json:"active,omitempty"`
	Provider string `json:"provider,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

// SessionSummary is one row of the session log without its change records.
type SessionSummary struct {
	ID           string              `json:"id"`
	Mode         model.SessionMode   `json:"mode"`
	Status       model.SessionStatus `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	Provenance   model.Provenance    `json:"provenance"`
	NewCount     int                 `json:"new_count"`
	UpdatedCount int                 `json:"updated_count"`
	RemovedCount int                 `json:"removed_count"`
	Error        string              `json:"error,omitempty"`
}

// Store is the persisted surface the synchronization pipeline and the CLI work against.
type Store interface {
	// Catalog
	ReadActiveEntries(ctx context.Context) ([]model.CatalogEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]model.CatalogEntry, error)
	CountEntries(ctx context.Context) (int, error)
	Deactivate(ctx context.Context, entryID int64) error
	PatchRate(ctx context.Context, entryID int64, tier model.Tier, rate float64, at time.Time) error

	// Manual curation
	AddEntry(ctx context.Context, providerID int64, planName string, rates model.Rates) (int64, error)

	// Provider directory
	ResolveProviderID(ctx context.Context, providerName string) (int64, error)
	UpsertProvider(ctx context.Context, providerName string) (int64, error)

	// Session log
	StartSession(ctx context.Context, s *model.Session) error
	FinishSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// rateColumn maps a tier to its column. Unknown tiers map to the 1000 kWh column.
func rateColumn(t model.Tier) string {
	switch t {
	case model.Tier500:
		return "rate_500"
	case model.Tier2000:
		return "rate_2000"
	default:
		return "rate_1000"
	}
}

func marshalStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal list")
	}
	return b, nil
}

func unmarshalStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal list")
	}
	return out, nil
}

// attachChanges distributes persisted change records into the session's lists.
func attachChanges(s *model.Session, changes []model.ChangeRecord) {
	s.NewPlans = []model.ChangeRecord{}
	s.UpdatedPlans = []model.ChangeRecord{}
	s.RemovedPlans = []model.ChangeRecord{}
	for _, c := range changes {
		switch c.Kind {
		case model.ChangeNew:
			s.NewPlans = append(s.NewPlans, c)
		case model.ChangeUpdated:
			s.UpdatedPlans = append(s.UpdatedPlans, c)
		case model.ChangeRemoved:
			s.RemovedPlans = append(s.RemovedPlans, c)
		}
	}
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
