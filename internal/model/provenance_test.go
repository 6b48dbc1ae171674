package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateProvenance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags []Provenance
		want Provenance
	}{
		{"all live", []Provenance{ProvenanceLive, ProvenanceLive, ProvenanceLive}, ProvenanceLive},
		{"all estimated", []Provenance{ProvenanceEstimated, ProvenanceEstimated}, ProvenanceEstimated},
		{"live and estimated", []Provenance{ProvenanceLive, ProvenanceEstimated, ProvenanceEstimated}, ProvenanceMixed},
		{"mock only", []Provenance{ProvenanceMock}, ProvenanceMock},
		{"mock and live", []Provenance{ProvenanceMock, ProvenanceLive}, ProvenanceMixed},
		{"nothing observed", nil, ProvenanceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateProvenance(tt.tags))
		})
	}
}
