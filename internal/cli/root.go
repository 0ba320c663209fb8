package cli

import (
	"io"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "shipit",
	Short: "shipit — tiered release tool for GitLab, Docker and Kubernetes",
	Long: `shipit releases a GitLab project through staging, rc and production.

A release computes the next version from the images already in the registry,
tags the release branch, builds and pushes the image on the build host, rolls
out the Kubernetes deployment and waits until every pod runs the new version.

Configuration is read from ./shipit.yaml or ~/.shipit/config.yaml unless
--file is given.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// newLogger returns a logfmt logger on w when --verbose is set, else a no-op.
func newLogger(w io.Writer) log.Logger {
	if !verbose {
		return log.NewNopLogger()
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to shipit config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log stage timings and commands to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
