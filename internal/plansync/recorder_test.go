package plansync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plansync/internal/model"
)

func TestRecorder_WarningsDeduplicated(t *testing.T) {
	r := NewRecorder("s1", model.ModePreview, fixedNow())
	r.Warn("primary source unavailable")
	r.Warn("primary source unavailable")
	r.Warn("other")

	s := r.Complete(fixedNow())
	assert.Equal(t, []string{"primary source unavailable", "other"}, s.Warnings)
}

func TestRecorder_Provenance(t *testing.T) {
	tests := []struct {
		name string
		tags []model.Provenance
		want model.Provenance
	}{
		{"all live", []model.Provenance{model.ProvenanceLive, model.ProvenanceLive}, model.ProvenanceLive},
		{"all estimated", []model.Provenance{model.ProvenanceEstimated}, model.ProvenanceEstimated},
		{"mixed", []model.Provenance{model.ProvenanceLive, model.ProvenanceEstimated, model.ProvenanceEstimated}, model.ProvenanceMixed},
		{"no regions", nil, model.ProvenanceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder("s1", model.ModePreview, fixedNow())
			for i, tag := range tt.tags {
				r.RegionDone(string(rune('a'+i)), tag, 2)
			}
			s := r.Complete(fixedNow())
			assert.Equal(t, tt.want, s.Provenance)
			assert.Equal(t, 2*len(tt.tags), s.TotalPlansFound)
			assert.Len(t, s.RegionsProcessed, len(tt.tags))
		})
	}
}

func TestRecorder_CompleteAndFail(t *testing.T) {
	start := fixedNow()
	r := NewRecorder("s1", model.ModeApply, start)
	running := r.Snapshot()
	assert.Equal(t, model.SessionRunning, running.Status)
	assert.Nil(t, running.CompletedAt)

	r.Error("estimation failed for region 79901")
	s := r.Fail(errors.New("plansync: read catalog snapshot: connection refused"), start.Add(time.Minute))
	assert.Equal(t, model.SessionFailed, s.Status)
	assert.Equal(t, "plansync: read catalog snapshot: connection refused", s.Error)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, start.Add(time.Minute), *s.CompletedAt)
	assert.Equal(t, []string{"estimation failed for region 79901"}, s.Errors)

	again := r.Complete(start.Add(time.Hour))
	assert.Equal(t, model.SessionFailed, again.Status, "terminal status must not change")
	assert.Equal(t, start.Add(time.Minute), *again.CompletedAt)
}

func TestRecorder_SnapshotIsACopy(t *testing.T) {
	r := NewRecorder("s1", model.ModePreview, fixedNow())
	r.Warn("w1")
	snap := r.Snapshot()
	snap.Warnings[0] = "changed"

	assert.Equal(t, []string{"w1"}, r.Snapshot().Warnings)
}

func TestRecorder_EmptyListsNotNil(t *testing.T) {
	s := NewRecorder("s1", model.ModePreview, fixedNow()).Complete(fixedNow())
	assert.NotNil(t, s.NewPlans)
	assert.NotNil(t, s.RegionsProcessed)
	assert.NotNil(t, s.Warnings)
}
