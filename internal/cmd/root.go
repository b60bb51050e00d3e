// Package cmd is the openmuxd CLI surface, grounded on
// dcosson-h2/internal/cmd/root.go's cobra root + PersistentPreRunE
// pattern: one root command ensures the on-disk layout exists, then
// dispatches to daemon (long-lived engine process) or one of the
// client subcommands that talk to it over internal/ctl.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openmux/openmux/internal/config"
	"github.com/openmux/openmux/internal/socketdir"
	"github.com/openmux/openmux/internal/version"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "openmuxd",
		Short:   "Terminal multiplexer engine",
		Long:    "openmuxd is a terminal multiplexer's core engine: PTY/emulation pipeline, master-stack layout, and session persistence, driven over a local control socket.",
		Version: version.DisplayVersion(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureDirs(); err != nil {
				return err
			}
			return socketdir.EnsureDir()
		},
	}

	rootCmd.AddCommand(
		newDaemonCmd(),
		newSessionCmd(),
		newPaneCmd(),
		newStatusCmd(),
	)
	return rootCmd
}

func ensureDirs() error {
	for _, dir := range []string{config.SessionsDir(), config.TemplatesDir(), config.ScrollbackArchiveDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
