package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/model"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time                         { return c.t }
func (c fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func sampleSession(status model.SessionStatus) *model.Session {
	start := time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC)
	done := start.Add(95 * time.Second)
	old, fresh := 12.0, 12.15
	return &model.Session{
		ID:               "sess-1",
		Mode:             model.ModeApply,
		StartedAt:        start,
		CompletedAt:      &done,
		Status:           status,
		RegionsProcessed: []string{"75201", "77002"},
		TotalPlansFound:  20,
		UniquePlans:      15,
		NewPlans:         []model.ChangeRecord{{Kind: model.ChangeNew, ProviderName: "Gexa Energy", PlanName: "Flex", NewRate: &fresh}},
		UpdatedPlans:     []model.ChangeRecord{{Kind: model.ChangeUpdated, EntryID: 4, ProviderName: "TXU Energy", PlanName: "Saver 12", OldRate: &old, NewRate: &fresh, Note: "1000 kWh: 12.00 -> 12.15 (+0.15)"}},
		RemovedPlans:     []model.ChangeRecord{},
		Warnings:         []string{"primary source unavailable for region 77002, using estimated data"},
		Errors:           []string{},
		Provenance:       model.ProvenanceMixed,
	}
}

func TestLog_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "plansync.log")
	l, err := Open(path, zap.WithClock(fixedClock{t: time.Date(2026, 10, 2, 6, 1, 35, 0, time.UTC)}))
	require.NoError(t, err)
	require.NoError(t, l.Write(sampleSession(model.SessionCompleted)))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)

	assert.True(t, strings.HasPrefix(lines[0], "2026-10-02T06:01:35.000Z INFO sync session"), lines[0])
	assert.Contains(t, lines[0], `"session": "sess-1"`)
	assert.Contains(t, lines[0], `"provenance": "mixed"`)
	assert.Contains(t, lines[1], "new plan (pending review)")
	assert.Contains(t, lines[2], `"note": "1000 kWh: 12.00 -> 12.15 (+0.15)"`)
	assert.Contains(t, lines[3], "WARN primary source unavailable for region 77002")
	assert.Contains(t, lines[4], "sync session finished")
	assert.Contains(t, lines[4], `"status": "completed"`)
	assert.Contains(t, lines[4], `"elapsed": "1m35s"`)
}

func TestAppend_IsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plansync.log")
	require.NoError(t, Append(path, sampleSession(model.SessionCompleted)))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Append(path, sampleSession(model.SessionFailed)))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(second), string(first)))
	assert.Contains(t, string(second[len(first):]), "ERROR sync session failed")
}

func TestOpen_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(filepath.Join(blocker, "plansync.log"))
	assert.Error(t, err)
}
