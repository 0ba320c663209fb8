package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/shipit/internal/registry"
	"github.com/lucasnoah/shipit/internal/shell"
	versionpkg "github.com/lucasnoah/shipit/internal/version"
	"github.com/lucasnoah/shipit/internal/workflow"
)

type tierVersion struct {
	Tier    workflow.Tier `json:"tier"`
	Image   string        `json:"image"`
	Version string        `json:"version"`
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Show the latest released version of every environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		code, err := workflow.FromEnvironments(cfg.Environments)
		if err != nil {
			return err
		}

		runner := &shell.ExecRunner{Root: cfg.Build.HostRoot}
		reg := registry.NewClient(runner)

		var rows []tierVersion
		for _, t := range code.Tiers() {
			env := workflow.EnvironmentFor(cfg.Environments, t)
			v, err := reg.Latest(cmd.Context(), env)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			rows = append(rows, tierVersion{Tier: t, Image: env.Image, Version: versionpkg.Format(v)})
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "workflow %s\n", code)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tVERSION\tIMAGE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Tier, r.Version, r.Image)
		}
		return w.Flush()
	},
}

func init() {
	versionsCmd.Flags().String("format", "table", "Output format: table or json")
}
