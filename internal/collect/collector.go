// Package collect acquires plan offers for one region at a time.
package collect

import (
	"context"

	"github.com/sells-group/plansync/internal/model"
)

// Collector fetches the offers published for one region. Implementations
// never return an error: any failure is reported as an Unavailable outcome.
type Collector interface {
	Collect(ctx context.Context, region model.Region) Outcome
}

// Outcome is the result of collecting one region: either Live records or
// Unavailable with a reason.
type Outcome struct {
	Records    []model.SourceRecord
	Provenance model.Provenance
	Reason     string
	available  bool
}

// Live builds an available outcome. Every record is stamped with prov.
func Live(records []model.SourceRecord, prov model.Provenance) Outcome {
	for i := range records {
		records[i].Provenance = prov
	}
	return Outcome{Records: records, Provenance: prov, available: true}
}

// Unavailable builds an outcome for a region the source could not serve.
func Unavailable(reason string) Outcome {
	if reason == "" {
		reason = "source unavailable"
	}
	return Outcome{Reason: reason}
}

// Available reports whether the outcome carries collected records.
func (o Outcome) Available() bool {
	return o.available
}
