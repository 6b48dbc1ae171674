// Package plansync reconciles freshly collected plan offerings against the
// catalog: dedupe, diff, apply and session recording, driven by Syncer.
package plansync

import (
	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/model"
)

// Dedupe collapses records observed across regions into one record per
// (provider, plan) identity. The first-seen record is kept unless a later
// duplicate carries a document reference the kept one lacks. Output order is
// the order in which each identity was first seen.
func Dedupe(records []model.SourceRecord) []model.SourceRecord {
	index := make(map[catalog.IdentityKey]int, len(records))
	out := make([]model.SourceRecord, 0, len(records))

	for _, rec := range records {
		key := catalog.NewIdentityKey(rec.ProviderName, rec.PlanName)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}
		if rec.Documents.Fills(out[i].Documents) {
			out[i] = rec
		}
	}
	return out
}
