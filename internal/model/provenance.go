package model

// Provenance marks where a SourceRecord came from.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceEstimated Provenance = "estimated"
	ProvenanceMock      Provenance = "mock"

	// ProvenanceMixed and ProvenanceNone only appear on a Session.
	ProvenanceMixed Provenance = "mixed"
	ProvenanceNone  Provenance = "none"
)

// AggregateProvenance folds the per-region tags observed in a run into one
// session tag: the single tag when every region agrees, mixed otherwise.
// A run that observed no region outcomes reports none.
func AggregateProvenance(tags []Provenance) Provenance {
	seen := make(map[Provenance]bool, len(tags))
	for _, t := range tags {
		seen[t] = true
	}
	switch len(seen) {
	case 0:
		return ProvenanceNone
	case 1:
		return tags[0]
	default:
		return ProvenanceMixed
	}
}
