package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and curate the plan catalog",
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		provider, _ := cmd.Flags().GetString("provider")
		limit, _ := cmd.Flags().GetInt("limit")
		filter := catalog.EntryFilter{Provider: provider, Limit: limit}
		if cmd.Flags().Changed("active") {
			active, _ := cmd.Flags().GetBool("active")
			filter.Active = &active
		}

		entries, err := st.ListEntries(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No catalog entries found.")
			return nil
		}

		formatEntries(os.Stdout, entries)
		return nil
	},
}

// -- catalog add --

var catalogAddCmd = &cobra.Command{
	Use:   "add <provider> <plan>",
	Short: "Add a reviewed plan to the catalog",
	Long:  "Adds a plan by hand, typically one a sync session reported as new. Sync runs never insert plans.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rates, err := parseRates(cmd)
		if err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		providerID, err := st.UpsertProvider(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "catalog add")
		}
		id, err := st.AddEntry(ctx, providerID, args[1], rates)
		if err != nil {
			return eris.Wrap(err, "catalog add")
		}

		zap.L().Info("catalog entry added",
			zap.Int64("entry_id", id),
			zap.String("provider", args[0]),
			zap.String("plan", args[1]),
		)
		return nil
	},
}

func init() {
	catalogListCmd.Flags().String("provider", "", "filter by provider name")
	catalogListCmd.Flags().Bool("active", true, "filter by active flag")
	catalogListCmd.Flags().Int("limit", 100, "max number of entries to display")

	catalogAddCmd.Flags().Float64("rate-500", 0, "price at 500 kWh (cents/kWh)")
	catalogAddCmd.Flags().Float64("rate-1000", 0, "price at 1000 kWh (cents/kWh)")
	catalogAddCmd.Flags().Float64("rate-2000", 0, "price at 2000 kWh (cents/kWh)")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogAddCmd)
	rootCmd.AddCommand(catalogCmd)
}

// parseRates reads the rate flags of catalog add. The 1000 kWh rate is required.
func parseRates(cmd *cobra.Command) (model.Rates, error) {
	var r model.Rates
	r.Rate500, _ = cmd.Flags().GetFloat64("rate-500")
	r.Rate1000, _ = cmd.Flags().GetFloat64("rate-1000")
	r.Rate2000, _ = cmd.Flags().GetFloat64("rate-2000")

	if r.Rate1000 <= 0 {
		return r, eris.New("--rate-1000 is required and must be positive")
	}
	if r.Rate500 < 0 || r.Rate2000 < 0 {
		return r, eris.New("rates must not be negative")
	}
	return r, nil
}

// formatEntries writes a tabular list of catalog entries to w.
func formatEntries(out io.Writer, entries []model.CatalogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tPLAN\t500\t1000\t2000\tACTIVE\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t---\t----\t----\t------\t-------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%t\t%s\n",
			e.ID,
			truncate(e.ProviderName, 30),
			truncate(e.PlanName, 40),
			e.Rates.Rate500,
			e.Rates.Rate1000,
			e.Rates.Rate2000,
			e.Active,
			e.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
