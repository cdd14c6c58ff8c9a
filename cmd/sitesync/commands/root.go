// Package commands implements the sitesync CLI, one file per verb.
//
// Exit codes: 0 on full success with no drift, 1 when a run completed
// with drift, skips or partial failures, 2 on fatal errors before
// execution (load, validation, structural).
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	providerSpec string
	storeSpec    string
	catalogPath  string
	policyDir    string
	logLevel     string
	logFormat    string
	jsonOutput   bool
	sshKeyPath   string
	knownHosts   string

	metricsListen string
	traceExporter string
	traceEndpoint string
)

// ExitError carries a non-fatal process exit code, code 1 for runs
// that finished with drift or partial failures.
type ExitError struct {
	Code int
	Msg  string
}

// Error implements the error interface.
func (e *ExitError) Error() string { return e.Msg }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 2
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sitesync",
		Short: "sitesync - multi-site network configuration lifecycle",
		Long: `sitesync captures, diffs, restores and verifies network configuration
across many sites.

Commands:
  backup          capture a site's configuration into the snapshot store
  snapshots       list the capture catalog
  diff            semantic diff between two snapshots
  restore         plan and apply a snapshot back onto a site
  apply-template  fan a template out to many sites with per-site bindings
  verify          report drift between a snapshot and the live site`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&providerSpec, "provider", "memory:", "provider endpoint (scheme:endpoint)")
	rootCmd.PersistentFlags().StringVar(&storeSpec, "store", ".sitesync/snapshots", "snapshot store: a directory or sftp://user@host/path")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", ".sitesync/catalog.db", "capture catalog database path")
	rootCmd.PersistentFlags().StringVar(&policyDir, "policy-dir", "", "directory of extra protection policies (*.rego)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&sshKeyPath, "ssh-key", "", "private key for sftp snapshot stores")
	rootCmd.PersistentFlags().StringVar(&knownHosts, "known-hosts", "", "known_hosts file for sftp host verification")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC endpoint for --trace-exporter=otlp")

	// Add subcommands
	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newSnapshotsCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newRestoreCommand())
	rootCmd.AddCommand(newApplyTemplateCommand())
	rootCmd.AddCommand(newVerifyCommand())

	return rootCmd
}
