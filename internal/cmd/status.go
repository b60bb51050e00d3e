package cmd

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query live daemon state",
	}
	cmd.AddCommand(newLayoutCmd(), newPsCmd())
	return cmd
}

func newLayoutCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the active workspace's layout state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "layout", nil)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

func newPsCmd() *cobra.Command {
	var daemonName, query string
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List live PTYs across every session (spec's aggregate index)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "ps", struct {
				Query string `json:"query"`
			}{Query: query})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	cmd.Flags().StringVar(&query, "query", "", "Whitespace-separated filter terms (OR across terms and fields)")
	return cmd
}
