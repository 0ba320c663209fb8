package cli

import (
	"context"
	"fmt"

	"github.com/lucasnoah/shipit/internal/db"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Release history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the release history (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("use --confirm to drop the release history")
		}

		d, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Release history reset.")
		return nil
	},
}

// openHistory connects to the configured history database.
func openHistory(ctx context.Context) (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.DSN == "" {
		return nil, fmt.Errorf("history.dsn is not configured")
	}
	return db.Open(ctx, cfg.History.DSN)
}

func init() {
	dbResetCmd.Flags().Bool("confirm", false, "Confirm dropping all recorded releases")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
