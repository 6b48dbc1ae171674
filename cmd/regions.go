package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/internal/region"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the sampling regions a sync run visits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		regions, err := region.Load(cfg.Sync.RegionsFile)
		if err != nil {
			return err
		}
		formatRegions(os.Stdout, regions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

// formatRegions writes the target list in visiting order to w.
func formatRegions(out io.Writer, regions []model.Region) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tID\tNAME\tUTILITY")
	_, _ = fmt.Fprintln(w, "-\t--\t----\t-------")
	for i, r := range regions {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, r.ID, r.DisplayName, r.ExpectedUtilityLabel)
	}
	_ = w.Flush()
}
