package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/internal/plansync"
	"github.com/sells-group/plansync/internal/review"
	"github.com/sells-group/plansync/internal/runlog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one plan synchronization session",
	Long: "Collects plans for every region, deduplicates them and compares them with the catalog. " +
		"By default the run is a preview; --apply soft-deletes withdrawn plans and patches changed rates. " +
		"New plans are never inserted. The session is appended to the run log and the command exits " +
		"non-zero when the session failed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := parseSyncOpts(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSyncEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		sess, err := env.Syncer.Run(runCtx, plansync.RunOpts{Apply: opts.Apply, Regions: opts.Regions})
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		return finishSync(os.Stdout, sess, opts)
	},
}

func init() {
	syncCmd.Flags().Bool("apply", false, "write removals and rate updates to the catalog (default is preview)")
	syncCmd.Flags().Duration("timeout", 0, "overall run timeout (default from sync.timeout_mins)")
	syncCmd.Flags().String("log-file", "", "append the session to this text log (default from sync.log_file)")
	syncCmd.Flags().String("xlsx", "", "write a review workbook of the session to this path")
	syncCmd.Flags().StringSlice("regions", nil, "restrict the run to these region ids")
	rootCmd.AddCommand(syncCmd)
}

// syncOpts holds the resolved sync command flags.
type syncOpts struct {
	Apply   bool
	Timeout time.Duration
	LogFile string
	XLSX    string
	Regions []string
}

// parseSyncOpts reads the sync flags, falling back to cfg for unset values.
func parseSyncOpts(cmd *cobra.Command) (syncOpts, error) {
	var opts syncOpts
	opts.Apply, _ = cmd.Flags().GetBool("apply")
	opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
	opts.LogFile, _ = cmd.Flags().GetString("log-file")
	opts.XLSX, _ = cmd.Flags().GetString("xlsx")
	opts.Regions, _ = cmd.Flags().GetStringSlice("regions")

	if opts.Timeout < 0 {
		return opts, eris.New("--timeout must not be negative")
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Duration(cfg.Sync.TimeoutMins) * time.Minute
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.LogFile == "" {
		opts.LogFile = cfg.Sync.LogFile
	}
	return opts, nil
}

// finishSync reports a finished session: summary to out, run log, optional
// workbook. It returns an error when the session failed.
func finishSync(out io.Writer, sess *model.Session, opts syncOpts) error {
	formatSessionSummary(out, sess)

	if opts.LogFile != "" {
		if err := runlog.Append(opts.LogFile, sess); err != nil {
			return eris.Wrap(err, "sync: append run log")
		}
	}

	if opts.XLSX != "" {
		if err := review.WriteWorkbook(opts.XLSX, sess); err != nil {
			return eris.Wrap(err, "sync: write review workbook")
		}
		zap.L().Info("review workbook written", zap.String("path", opts.XLSX))
	}

	if sess.Status == model.SessionFailed {
		return eris.Errorf("sync: session %s failed: %s", sess.ID, sess.Error)
	}
	return nil
}

// formatSessionSummary writes the headline figures of a session to w.
func formatSessionSummary(out io.Writer, sess *model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", sess.ID)
	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", sess.Mode)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", sess.Status)
	_, _ = fmt.Fprintf(w, "Provenance:\t%s\n", sess.Provenance)
	_, _ = fmt.Fprintf(w, "Regions:\t%d\n", len(sess.RegionsProcessed))
	_, _ = fmt.Fprintf(w, "Plans found:\t%d\n", sess.TotalPlansFound)
	_, _ = fmt.Fprintf(w, "Unique plans:\t%d\n", sess.UniquePlans)
	_, _ = fmt.Fprintf(w, "New (for review):\t%d\n", len(sess.NewPlans))
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", len(sess.UpdatedPlans))
	_, _ = fmt.Fprintf(w, "Removed:\t%d\n", len(sess.RemovedPlans))
	if sess.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", sess.CompletedAt.Sub(sess.StartedAt).Round(time.Second))
	}
	for _, warn := range sess.Warnings {
		_, _ = fmt.Fprintf(w, "Warning:\t%s\n", warn)
	}
	for _, e := range sess.Errors {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", e)
	}
	if sess.Error != "" {
		_, _ = fmt.Fprintf(w, "Failure:\t%s\n", sess.Error)
	}
	_ = w.Flush()
}
