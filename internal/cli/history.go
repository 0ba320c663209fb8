package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/shipit/internal/db"
	"github.com/lucasnoah/shipit/internal/workflow"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded releases, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		tierFlag, _ := cmd.Flags().GetString("tier")

		filter := db.ReleaseFilter{Limit: limit}
		if tierFlag != "" {
			t, err := workflow.ParseTier(tierFlag)
			if err != nil {
				return err
			}
			filter.Tier = string(t)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		filter.Project = cfg.Project

		d, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		releases, err := d.ListReleases(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(releases)
		}

		if len(releases) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No releases recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIER\tVERSION\tWORKFLOW\tBY\tRELEASED")
		for _, r := range releases {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Tier, r.Version, r.Workflow, r.ReleasedBy, r.ReleasedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().String("format", "table", "Output format: table or json")
	historyCmd.Flags().Int("limit", 20, "Maximum number of releases to show")
	historyCmd.Flags().String("tier", "", "Only show releases of this tier (stg, rc, prod)")
}
