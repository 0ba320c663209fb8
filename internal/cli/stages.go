package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/shipit/internal/pipeline"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List release stages in execution order",
	Long:  "Lists the stage names accepted by --stop-before and the stop_before config key.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checkpoint := ""
		if cfg, err := loadConfig(); err == nil {
			checkpoint = cfg.StopBefore
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tSTAGE\t")
		for i, name := range pipeline.Stages {
			mark := ""
			if name == checkpoint {
				mark = "← stop_before"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, name, mark)
		}
		return w.Flush()
	},
}
