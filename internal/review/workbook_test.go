package review

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/plansync/internal/model"
)

func f64(v float64) *float64 { return &v }

func sampleSession() *model.Session {
	start := time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC)
	done := start.Add(2 * time.Minute)
	return &model.Session{
		ID:              "sess-1",
		Mode:            model.ModePreview,
		Status:          model.SessionCompleted,
		StartedAt:       start,
		CompletedAt:     &done,
		TotalPlansFound: 12,
		UniquePlans:     9,
		Provenance:      model.ProvenanceMixed,
		NewPlans: []model.ChangeRecord{{
			Kind:         model.ChangeNew,
			ProviderName: "Gexa Energy",
			PlanName:     "Eco Saver 24",
			NewRate:      f64(14.9),
			Source: &model.SourceRecord{
				ProviderName:         "Gexa Energy",
				PlanName:             "Eco Saver 24",
				Class:                model.PlanFixed,
				ContractMonths:       24,
				Rates:                model.Rates{Rate500: 17.1, Rate1000: 14.9, Rate2000: 13.9},
				RenewablePct:         100,
				Fees:                 model.Fees{BaseMonthly: 4.95, EarlyExit: 150},
				Documents:            model.DocumentRefs{FactsLabel: "https://example.com/efl.pdf"},
				Provenance:           model.ProvenanceLive,
				RequiresVerification: false,
				RegionID:             "75201",
			},
		}},
		UpdatedPlans: []model.ChangeRecord{{Kind: model.ChangeUpdated, EntryID: 4, ProviderName: "TXU Energy", PlanName: "Saver 12", OldRate: f64(12.0), NewRate: f64(12.15), Note: "1000 kWh: 12.00 -> 12.15 (+0.15)"}},
		RemovedPlans: []model.ChangeRecord{{Kind: model.ChangeRemoved, EntryID: 9, ProviderName: "Reliant", PlanName: "Flex", OldRate: f64(16.0)}},
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.xlsx")
	require.NoError(t, WriteWorkbook(path, sampleSession()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	summary := f.Sheet[SheetSummary]
	require.NotNil(t, summary)
	assert.Equal(t, "sess-1", summary.Rows[0].Cells[1].String())
	assert.Equal(t, "mixed", summary.Rows[5].Cells[1].String())
	assert.Equal(t, "1", summary.Rows[8].Cells[1].String())

	plans := f.Sheet[SheetNewPlans]
	require.NotNil(t, plans)
	require.Len(t, plans.Rows, 2)
	assert.Equal(t, "Provider", plans.Rows[0].Cells[0].String())
	row := plans.Rows[1].Cells
	assert.Equal(t, "Gexa Energy", row[0].String())
	assert.Equal(t, "Eco Saver 24", row[1].String())
	assert.Equal(t, "fixed", row[2].String())
	months, err := row[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 24, months)
	rate, err := row[5].Float()
	require.NoError(t, err)
	assert.InDelta(t, 14.9, rate, 1e-9)
	assert.Equal(t, "https://example.com/efl.pdf", row[10].String())
	assert.Equal(t, "75201", row[15].String())
	assert.Equal(t, "no", row[16].String())

	changes := f.Sheet[SheetChanges]
	require.NotNil(t, changes)
	require.Len(t, changes.Rows, 3)
	assert.Equal(t, "updated", changes.Rows[1].Cells[0].String())
	assert.Equal(t, "removed", changes.Rows[2].Cells[0].String())
	old, err := changes.Rows[2].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 16.0, old, 1e-9)
}

func TestWriteWorkbook_EmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	sess := &model.Session{ID: "sess-2", Status: model.SessionFailed, StartedAt: time.Now()}
	require.NoError(t, WriteWorkbook(path, sess))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheet[SheetNewPlans].Rows, 1)
	assert.Equal(t, "failed", f.Sheet[SheetSummary].Rows[2].Cells[1].String())
}

func TestWriteWorkbook_BadPath(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "missing", "review.xlsx"), sampleSession())
	assert.Error(t, err)
}

func TestWriteWorkbook_FlagsMissingDocuments(t *testing.T) {
	sess := sampleSession()
	sess.NewPlans[0].Source.Documents = model.DocumentRefs{}

	path := filepath.Join(t.TempDir(), "review.xlsx")
	require.NoError(t, WriteWorkbook(path, sess))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	row := f.Sheet[SheetNewPlans].Rows[1].Cells
	require.Len(t, row, 17)
	assert.Equal(t, "yes", row[16].String())
}
