package plansync

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/model"
)

// DefaultEpsilon is the rate delta, in cents per kWh, at or below which a
// difference is treated as noise.
const DefaultEpsilon = 0.1

// Resolver maps a provider name to its directory id.
type Resolver interface {
	Resolve(ctx context.Context, providerName string) (id int64, found bool, err error)
}

// DiffOptions selects the compared tier and the noise threshold.
type DiffOptions struct {
	Tier    model.Tier
	Epsilon float64
}

// DiffResult is the change set plus the number of fresh records that could not
// be represented because their provider is not in the directory.
type DiffResult struct {
	Changes    model.ChangeSet
	Unresolved int
}

type entryKey struct {
	providerID int64
	plan       string
}

// Diff compares the unique fresh records against a snapshot of active catalog
// entries. Only opts.Tier is compared. A resolver failure aborts the diff.
func Diff(ctx context.Context, fresh []model.SourceRecord, snapshot []model.CatalogEntry, resolver Resolver, opts DiffOptions) (*DiffResult, error) {
	log := zap.L().With(zap.String("component", "plansync.differ"))

	lookup := make(map[entryKey]model.CatalogEntry, len(snapshot))
	for _, e := range snapshot {
		if !e.Active {
			continue
		}
		lookup[entryKey{providerID: e.ProviderID, plan: catalog.NormalizeName(e.PlanName)}] = e
	}

	res := &DiffResult{Changes: model.ChangeSet{
		New:     []model.ChangeRecord{},
		Updated: []model.ChangeRecord{},
		Removed: []model.ChangeRecord{},
	}}

	for i := range fresh {
		rec := fresh[i]
		providerID, found, err := resolver.Resolve(ctx, rec.ProviderName)
		if err != nil {
			return nil, eris.Wrapf(err, "plansync: resolve provider %q", rec.ProviderName)
		}
		if !found {
			log.Debug("skipping plan from unknown provider",
				zap.String("provider", rec.ProviderName),
				zap.String("plan", rec.PlanName),
			)
			res.Unresolved++
			continue
		}

		freshRate := rec.Rates.At(opts.Tier)
		key := entryKey{providerID: providerID, plan: catalog.NormalizeName(rec.PlanName)}
		entry, ok := lookup[key]
		if !ok {
			res.Changes.New = append(res.Changes.New, model.ChangeRecord{
				Kind:         model.ChangeNew,
				ProviderName: rec.ProviderName,
				PlanName:     rec.PlanName,
				NewRate:      ptr(freshRate),
				Source:       &rec,
			})
			continue
		}
		delete(lookup, key)

		oldRate := entry.Rates.At(opts.Tier)
		if math.Abs(freshRate-oldRate) > opts.Epsilon {
			res.Changes.Updated = append(res.Changes.Updated, model.ChangeRecord{
				Kind:         model.ChangeUpdated,
				EntryID:      entry.ID,
				ProviderName: entry.ProviderName,
				PlanName:     entry.PlanName,
				OldRate:      ptr(oldRate),
				NewRate:      ptr(freshRate),
				Note:         rateNote(opts.Tier, oldRate, freshRate),
				Source:       &rec,
			})
		}
	}

	remaining := make([]model.CatalogEntry, 0, len(lookup))
	for _, e := range lookup {
		remaining = append(remaining, e)
	}
	sort.Slice(remaining, func(i, j int) bool {
		a, b := remaining[i], remaining[j]
		if a.ProviderName != b.ProviderName {
			return a.ProviderName < b.ProviderName
		}
		if a.PlanName != b.PlanName {
			return a.PlanName < b.PlanName
		}
		return a.ID < b.ID
	})
	for _, e := range remaining {
		res.Changes.Removed = append(res.Changes.Removed, model.ChangeRecord{
			Kind:         model.ChangeRemoved,
			EntryID:      e.ID,
			ProviderName: e.ProviderName,
			PlanName:     e.PlanName,
			OldRate:      ptr(e.Rates.At(opts.Tier)),
		})
	}

	return res, nil
}

// rateNote renders "1000 kWh: 12.00 -> 12.15 (+0.15)".
func rateNote(tier model.Tier, oldRate, newRate float64) string {
	return fmt.Sprintf("%s: %.2f -> %.2f (%+.2f)", tier, oldRate, newRate, newRate-oldRate)
}

func ptr(v float64) *float64 { return &v }
