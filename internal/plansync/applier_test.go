package plansync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plansync/internal/model"
)

// MockMutator is a testify mock of Mutator.
type MockMutator struct {
	mock.Mock
}

func (m *MockMutator) Deactivate(ctx context.Context, entryID int64) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockMutator) PatchRate(ctx context.Context, entryID int64, tier model.Tier, rate float64, at time.Time) error {
	args := m.Called(ctx, entryID, tier, rate, at)
	return args.Error(0)
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)
}

func TestApplier_Policy(t *testing.T) {
	m := new(MockMutator)
	m.On("Deactivate", mock.Anything, int64(7)).Return(nil).Once()
	m.On("PatchRate", mock.Anything, int64(3), model.Tier1000, 12.15, fixedNow()).Return(nil).Once()

	a := NewApplier(m, model.Tier1000)
	a.now = fixedNow

	res := a.Apply(context.Background(), model.ChangeSet{
		New:     []model.ChangeRecord{{Kind: model.ChangeNew, ProviderName: "Gexa Energy", PlanName: "Flex", NewRate: ptr(16.1)}},
		Updated: []model.ChangeRecord{{Kind: model.ChangeUpdated, EntryID: 3, ProviderName: "TXU Energy", PlanName: "Saver 12", OldRate: ptr(12.0), NewRate: ptr(12.15)}},
		Removed: []model.ChangeRecord{{Kind: model.ChangeRemoved, EntryID: 7, ProviderName: "Reliant", PlanName: "Flex", OldRate: ptr(16.0)}},
	})

	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, 1, res.Patched)
	assert.Equal(t, 1, res.PendingReview)
	assert.Empty(t, res.Warnings)
	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "Deactivate", 1)
	m.AssertNumberOfCalls(t, "PatchRate", 1)
}

func TestApplier_FailuresAreIsolated(t *testing.T) {
	m := new(MockMutator)
	m.On("Deactivate", mock.Anything, int64(1)).Return(errors.New("lock timeout")).Once()
	m.On("Deactivate", mock.Anything, int64(2)).Return(nil).Once()
	m.On("PatchRate", mock.Anything, int64(3), model.Tier2000, mock.Anything, mock.Anything).Return(errors.New("conn closed")).Once()
	m.On("PatchRate", mock.Anything, int64(4), model.Tier2000, mock.Anything, mock.Anything).Return(nil).Once()

	a := NewApplier(m, model.Tier2000)
	res := a.Apply(context.Background(), model.ChangeSet{
		Updated: []model.ChangeRecord{
			{EntryID: 3, ProviderName: "TXU Energy", PlanName: "Saver 12", NewRate: ptr(11.0)},
			{EntryID: 4, ProviderName: "TXU Energy", PlanName: "Secure 24", NewRate: ptr(10.5)},
			{EntryID: 5, ProviderName: "TXU Energy", PlanName: "Broken"},
		},
		Removed: []model.ChangeRecord{
			{EntryID: 1, ProviderName: "Reliant", PlanName: "Flex"},
			{EntryID: 2, ProviderName: "Reliant", PlanName: "Saver 12"},
		},
	})

	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, 1, res.Patched)
	require.Len(t, res.Warnings, 3)
	assert.Equal(t, "deactivate failed for Reliant / Flex (entry 1): lock timeout", res.Warnings[0])
	assert.Contains(t, res.Warnings[1], "Saver 12 (entry 3)")
	assert.Contains(t, res.Warnings[2], "no new rate")
	m.AssertExpectations(t)
}

func TestApplier_NewPlansNeverWritten(t *testing.T) {
	m := new(MockMutator)

	res := NewApplier(m, model.Tier1000).Apply(context.Background(), model.ChangeSet{
		New: []model.ChangeRecord{
			{Kind: model.ChangeNew, ProviderName: "A", PlanName: "1"},
			{Kind: model.ChangeNew, ProviderName: "B", PlanName: "2"},
		},
	})

	assert.Equal(t, 2, res.PendingReview)
	m.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "PatchRate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
