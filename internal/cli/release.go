package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/shipit/internal/build"
	"github.com/lucasnoah/shipit/internal/console"
	"github.com/lucasnoah/shipit/internal/db"
	"github.com/lucasnoah/shipit/internal/gitlab"
	"github.com/lucasnoah/shipit/internal/pipeline"
	"github.com/lucasnoah/shipit/internal/prompt"
	"github.com/lucasnoah/shipit/internal/registry"
	"github.com/lucasnoah/shipit/internal/rollout"
	"github.com/lucasnoah/shipit/internal/shell"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the project to one environment",
	Long: `Runs the release stages in order:

  validate config, select environment, check the promotion branch is merged,
  fetch versions, compute and confirm the next version, tag, clone, build,
  push, clean up, deploy and wait for the rollout.

A run can end early without failing: when the promotion branch has unmerged
changes, when nothing changed since the last release, when the operator
cancels, or at the --stop-before checkpoint. See "shipit stages" for stage
names.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		envName, _ := cmd.Flags().GetString("env")
		stopBefore, _ := cmd.Flags().GetString("stop-before")
		reportPath, _ := cmd.Flags().GetString("report")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()
		logger := newLogger(errOut)

		runner := &shell.ExecRunner{Root: cfg.Build.HostRoot, Terminal: errOut}

		driver := build.NewDriver(runner, cfg)
		driver.SetProgress(errOut)

		watcher := rollout.NewWatcher(runner, out)
		watcher.SetPollInterval(cfg.Rollout.Interval())
		watcher.SetLogger(logger)

		deps := pipeline.Deps{
			Git:      gitlab.NewFromConfig(cfg.Git),
			Registry: registry.NewClient(runner),
			Driver:   driver,
			Rollout:  watcher,
			Operator: prompt.New(cmd.InOrStdin(), out),
		}
		if cfg.History.DSN != "" {
			d, err := db.Open(ctx, cfg.History.DSN)
			if err == nil {
				err = d.Migrate(ctx)
				defer d.Close()
			}
			if err != nil {
				logger.Log("msg", "history disabled", "err", err)
				fmt.Fprintln(errOut, console.Warn("release history unavailable: "+err.Error()))
			} else {
				deps.Recorder = d
			}
		}

		orch := pipeline.New(cfg, deps, pipeline.Options{Env: envName, StopBefore: stopBefore})
		orch.SetOutput(out)
		orch.SetProgress(errOut)
		orch.SetLogger(logger)

		result, err := orch.Run(ctx)
		if err != nil {
			return err
		}

		if reportPath != "" {
			if err := pipeline.WriteReport(reportPath, result); err != nil {
				return err
			}
		}

		switch {
		case result.Halt != nil:
			fmt.Fprintln(out, console.Muted(fmt.Sprintf("halted at %s: %s", result.Stage, result.Halt.Reason)))
		case result.Checkpoint != "":
			fmt.Fprintln(out, console.Muted(fmt.Sprintf("stopped before %s (next version %s)",
				result.Checkpoint, nextVersion(result))))
		}
		return nil
	},
}

func nextVersion(r *pipeline.Result) string {
	if r.State.Next != nil {
		return r.State.Next.String()
	}
	if r.State.Preferred != nil {
		return r.State.Preferred.String() + ", unconfirmed"
	}
	return "not computed"
}

func init() {
	releaseCmd.Flags().StringP("env", "e", "", "environment to release: stg, rc or prod (prompted when empty)")
	releaseCmd.Flags().String("stop-before", "", "stop before this stage (overrides stop_before in the config)")
	releaseCmd.Flags().String("report", "", "write a JSON summary of the run to this file")
}
