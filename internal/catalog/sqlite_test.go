package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plansync/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedEntry(t *testing.T, st Store, provider, plan string, rate1000 float64) int64 {
	t.Helper()
	ctx := context.Background()
	pid, err := st.UpsertProvider(ctx, provider)
	require.NoError(t, err)
	id, err := st.AddEntry(ctx, pid, plan, model.Rates{Rate500: rate1000 + 1, Rate1000: rate1000, Rate2000: rate1000 - 0.5})
	require.NoError(t, err)
	return id
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Providers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.UpsertProvider(ctx, "TXU Energy")
	require.NoError(t, err)

	again, err := st.UpsertProvider(ctx, "  txu energy ")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	resolved, err := st.ResolveProviderID(ctx, "TXU  ENERGY")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	_, err = st.ResolveProviderID(ctx, "Nobody Power")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.UpsertProvider(ctx, " ")
	assert.Error(t, err)
}

func TestSQLite_ReadActiveEntries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saver := seedEntry(t, st, "TXU Energy", "Saver 12", 13.2)
	seedEntry(t, st, "Reliant", "Secure 24", 12.9)
	require.NoError(t, st.Deactivate(ctx, saver))

	entries, err := st.ReadActiveEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Reliant", entries[0].ProviderName)
	assert.Equal(t, "Secure 24", entries[0].PlanName)
	assert.InDelta(t, 12.9, entries[0].Rates.Rate1000, 0.0001)
	assert.True(t, entries[0].Active)
	assert.False(t, entries[0].UpdatedAt.IsZero())
}

func TestSQLite_DeactivateKeepsRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedEntry(t, st, "TXU Energy", "Saver 12", 11.0)
	require.NoError(t, st.Deactivate(ctx, id))

	n, err := st.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inactive := false
	entries, err := st.ListEntries(ctx, EntryFilter{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.False(t, entries[0].Active)
	assert.InDelta(t, 11.0, entries[0].Rates.Rate1000, 0.0001)

	assert.ErrorIs(t, st.Deactivate(ctx, 9999), ErrNotFound)
}

func TestSQLite_PatchRate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedEntry(t, st, "TXU Energy", "Saver 12", 12.0)
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.PatchRate(ctx, id, model.Tier1000, 12.15, at))

	entries, err := st.ListEntries(ctx, EntryFilter{Provider: "txu energy"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.InDelta(t, 12.15, e.Rates.Rate1000, 0.0001)
	assert.InDelta(t, 13.0, e.Rates.Rate500, 0.0001)
	assert.True(t, e.Active)
	assert.True(t, e.UpdatedAt.Equal(at), e.UpdatedAt)

	require.NoError(t, st.PatchRate(ctx, id, model.Tier2000, 11.1, at))
	entries, err = st.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 11.1, entries[0].Rates.Rate2000, 0.0001)

	assert.ErrorIs(t, st.PatchRate(ctx, 4242, model.Tier1000, 1, at), ErrNotFound)
}

func TestSQLite_AddEntryReactivates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedEntry(t, st, "Gexa Energy", "Eco Saver 24", 14.9)
	require.NoError(t, st.Deactivate(ctx, id))

	again := seedEntry(t, st, "Gexa Energy", "eco saver 24", 14.1)
	assert.Equal(t, id, again)

	entries, err := st.ReadActiveEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 14.1, entries[0].Rates.Rate1000, 0.0001)
}

func TestSQLite_SessionLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	started := time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC)
	sess := &model.Session{
		ID:        "sess-1",
		Mode:      model.ModeApply,
		Status:    model.SessionRunning,
		StartedAt: started,
	}
	require.NoError(t, st.StartSession(ctx, sess))

	running, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, running.Status)
	assert.Nil(t, running.CompletedAt)

	old, fresh := 12.0, 12.15
	removedRate := 11.0
	done := started.Add(3 * time.Minute)
	sess.Status = model.SessionCompleted
	sess.CompletedAt = &done
	sess.RegionsProcessed = []string{"75201", "77002"}
	sess.TotalPlansFound = 40
	sess.UniquePlans = 31
	sess.NewPlans = []model.ChangeRecord{{Kind: model.ChangeNew, ProviderName: "Gexa Energy", PlanName: "Flex", NewRate: &fresh}}
	sess.UpdatedPlans = []model.ChangeRecord{{Kind: model.ChangeUpdated, EntryID: 4, ProviderName: "TXU Energy", PlanName: "Saver 12", OldRate: &old, NewRate: &fresh, Note: "1000 kWh: 12.00 -> 12.15"}}
	sess.RemovedPlans = []model.ChangeRecord{{Kind: model.ChangeRemoved, EntryID: 9, ProviderName: "Reliant", PlanName: "Saver 12", OldRate: &removedRate}}
	sess.Warnings = []string{"primary source unavailable for region 77002, using estimated data"}
	sess.Errors = []string{}
	sess.Provenance = model.ProvenanceMixed
	require.NoError(t, st.FinishSession(ctx, sess))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeApply, got.Mode)
	assert.Equal(t, model.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, []string{"75201", "77002"}, got.RegionsProcessed)
	assert.Equal(t, 40, got.TotalPlansFound)
	assert.Equal(t, 31, got.UniquePlans)
	assert.Equal(t, model.ProvenanceMixed, got.Provenance)
	assert.Equal(t, sess.Warnings, got.Warnings)
	assert.Empty(t, got.Errors)

	require.Len(t, got.NewPlans, 1)
	assert.Equal(t, int64(0), got.NewPlans[0].EntryID)
	assert.Nil(t, got.NewPlans[0].OldRate)
	require.Len(t, got.UpdatedPlans, 1)
	assert.InDelta(t, 12.0, *got.UpdatedPlans[0].OldRate, 0.0001)
	assert.InDelta(t, 12.15, *got.UpdatedPlans[0].NewRate, 0.0001)
	assert.Equal(t, "1000 kWh: 12.00 -> 12.15", got.UpdatedPlans[0].Note)
	require.Len(t, got.RemovedPlans, 1)
	assert.Equal(t, int64(9), got.RemovedPlans[0].EntryID)

	list, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].NewCount)
	assert.Equal(t, 1, list[0].UpdatedCount)
	assert.Equal(t, 1, list[0].RemovedCount)
	assert.Equal(t, model.ProvenanceMixed, list[0].Provenance)
}

func TestSQLite_ListSessionsFilterAndOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	for i, status := range []model.SessionStatus{model.SessionCompleted, model.SessionFailed, model.SessionCompleted} {
		sess := &model.Session{ID: string(rune('a' + i)), Mode: model.ModePreview, Status: model.SessionRunning, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, st.StartSession(ctx, sess))
		end := sess.StartedAt.Add(time.Minute)
		sess.Status = status
		sess.CompletedAt = &end
		sess.Provenance = model.ProvenanceLive
		if status == model.SessionFailed {
			sess.Error = "catalog snapshot unavailable"
		}
		require.NoError(t, st.FinishSession(ctx, sess))
	}

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	failed, err := st.ListSessions(ctx, SessionFilter{Status: model.SessionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "catalog snapshot unavailable", failed[0].Error)

	limited, err := st.ListSessions(ctx, SessionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_SessionNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.FinishSession(ctx, &model.Session{ID: "missing", Status: model.SessionFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}
