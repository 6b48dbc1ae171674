package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeSet_AllAndTotal(t *testing.T) {
	t.Parallel()

	cs := ChangeSet{
		New:     []ChangeRecord{{Kind: ChangeNew, PlanName: "a"}},
		Updated: []ChangeRecord{{Kind: ChangeUpdated, PlanName: "b"}, {Kind: ChangeUpdated, PlanName: "c"}},
		Removed: []ChangeRecord{{Kind: ChangeRemoved, PlanName: "d"}},
	}

	assert.Equal(t, 4, cs.Total())
	all := cs.All()
	assert.Len(t, all, 4)
	assert.Equal(t, "a", all[0].PlanName)
	assert.Equal(t, "d", all[3].PlanName)
	assert.Equal(t, 0, ChangeSet{}.Total())
}

func TestSessionStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, SessionRunning.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionFailed.Terminal())
}

func TestSession_Changes(t *testing.T) {
	t.Parallel()

	s := &Session{
		NewPlans:     []ChangeRecord{{Kind: ChangeNew}},
		RemovedPlans: []ChangeRecord{{Kind: ChangeRemoved}},
	}
	cs := s.Changes()
	assert.Len(t, cs.New, 1)
	assert.Empty(t, cs.Updated)
	assert.Len(t, cs.Removed, 1)
}
