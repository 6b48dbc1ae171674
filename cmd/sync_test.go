package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plansync/internal/collect"
	"github.com/sells-group/plansync/internal/config"
	"github.com/sells-group/plansync/internal/model"
)

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func newSyncFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sync"}
	cmd.Flags().Bool("apply", false, "")
	cmd.Flags().Duration("timeout", 0, "")
	cmd.Flags().String("log-file", "", "")
	cmd.Flags().String("xlsx", "", "")
	cmd.Flags().StringSlice("regions", nil, "")
	return cmd
}

func f64(v float64) *float64 { return &v }

func sampleSession(status model.SessionStatus) *model.Session {
	started := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	done := started.Add(95 * time.Second)
	return &model.Session{
		ID:               "0b7c7d0e-5f7a-4c55-9b0e-1f6f3f0f9a11",
		Mode:             model.ModeApply,
		Status:           status,
		StartedAt:        started,
		CompletedAt:      &done,
		RegionsProcessed: []string{"75201", "77002"},
		TotalPlansFound:  12,
		UniquePlans:      10,
		NewPlans: []model.ChangeRecord{
			{Kind: model.ChangeNew, ProviderName: "Gexa Energy", PlanName: "Gexa Saver Supreme 12", NewRate: f64(13.1)},
		},
		UpdatedPlans: []model.ChangeRecord{
			{Kind: model.ChangeUpdated, EntryID: 7, ProviderName: "TXU Energy", PlanName: "TXU Simple Rate 12", OldRate: f64(14.0), NewRate: f64(14.2)},
		},
		RemovedPlans: []model.ChangeRecord{},
		Warnings:     []string{"primary source unavailable for region 77002, using estimated data"},
		Errors:       []string{},
		Provenance:   model.ProvenanceMixed,
	}
}

func TestParseSyncOpts_Defaults(t *testing.T) {
	withConfig(t, &config.Config{Sync: config.SyncConfig{TimeoutMins: 45, LogFile: "plansync.log"}})

	opts, err := parseSyncOpts(newSyncFlagsCmd())
	require.NoError(t, err)
	assert.False(t, opts.Apply)
	assert.Equal(t, 45*time.Minute, opts.Timeout)
	assert.Equal(t, "plansync.log", opts.LogFile)
	assert.Empty(t, opts.XLSX)
	assert.Empty(t, opts.Regions)
}

func TestParseSyncOpts_Flags(t *testing.T) {
	withConfig(t, &config.Config{Sync: config.SyncConfig{TimeoutMins: 45, LogFile: "plansync.log"}})

	cmd := newSyncFlagsCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--apply", "--timeout", "90s", "--log-file", "/tmp/x.log", "--xlsx", "out.xlsx", "--regions", "75201,77002",
	}))

	opts, err := parseSyncOpts(cmd)
	require.NoError(t, err)
	assert.True(t, opts.Apply)
	assert.Equal(t, 90*time.Second, opts.Timeout)
	assert.Equal(t, "/tmp/x.log", opts.LogFile)
	assert.Equal(t, "out.xlsx", opts.XLSX)
	assert.Equal(t, []string{"75201", "77002"}, opts.Regions)
}

func TestParseSyncOpts_NegativeTimeout(t *testing.T) {
	withConfig(t, &config.Config{})

	cmd := newSyncFlagsCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--timeout=-1m"}))

	_, err := parseSyncOpts(cmd)
	assert.Error(t, err)
}

func TestParseSyncOpts_FallbackTimeout(t *testing.T) {
	withConfig(t, &config.Config{})

	opts, err := parseSyncOpts(newSyncFlagsCmd())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, opts.Timeout)
}

func TestFormatSessionSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSessionSummary(&buf, sampleSession(model.SessionCompleted))

	out := buf.String()
	assert.Contains(t, out, "0b7c7d0e-5f7a-4c55-9b0e-1f6f3f0f9a11")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "mixed")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "primary source unavailable for region 77002")
	assert.NotContains(t, out, "Failure:")
}

func TestFinishSync_CompletedWritesLogAndWorkbook(t *testing.T) {
	dir := t.TempDir()
	opts := syncOpts{
		LogFile: filepath.Join(dir, "logs", "plansync.log"),
		XLSX:    filepath.Join(dir, "review.xlsx"),
	}

	var buf bytes.Buffer
	err := finishSync(&buf, sampleSession(model.SessionCompleted), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sync session finished")

	_, err = os.Stat(opts.XLSX)
	assert.NoError(t, err)
}

func TestFinishSync_FailedSessionReturnsError(t *testing.T) {
	dir := t.TempDir()
	opts := syncOpts{LogFile: filepath.Join(dir, "plansync.log")}

	sess := sampleSession(model.SessionFailed)
	sess.Error = "plansync: read catalog snapshot: connection refused"

	var buf bytes.Buffer
	err := finishSync(&buf, sess, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, buf.String(), "Failure:")

	data, readErr := os.ReadFile(opts.LogFile)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "sync session failed")
}

func TestFinishSync_LogAppends(t *testing.T) {
	opts := syncOpts{LogFile: filepath.Join(t.TempDir(), "plansync.log")}

	var buf bytes.Buffer
	require.NoError(t, finishSync(&buf, sampleSession(model.SessionCompleted), opts))
	require.NoError(t, finishSync(&buf, sampleSession(model.SessionCompleted), opts))

	data, err := os.ReadFile(opts.LogFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "sync session finished"))
}

func TestBuildCollector(t *testing.T) {
	c, err := buildCollector(config.SourceConfig{Mode: "file", FixturesDir: "testdata"})
	require.NoError(t, err)
	assert.IsType(t, &collect.FileCollector{}, c)

	c, err = buildCollector(config.SourceConfig{Mode: "http", BaseURL: "http://localhost", MaxAttempts: 1})
	require.NoError(t, err)
	assert.IsType(t, &collect.HTTPCollector{}, c)

	_, err = buildCollector(config.SourceConfig{Mode: "ftp"})
	assert.Error(t, err)
}

func TestEstimatorFactory_SeededIsReproducible(t *testing.T) {
	region := model.Region{ID: "75201", DisplayName: "Dallas"}
	factory := estimatorFactory(config.SyncConfig{
		EstimatorSeed:      42,
		EstimatorProviders: []string{"TXU Energy", "Reliant"},
	})

	first, err := factory().Estimate(region)
	require.NoError(t, err)
	second, err := factory().Estimate(region)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}
