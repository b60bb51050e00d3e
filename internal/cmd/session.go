package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmux/openmux/internal/ctl"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage named sessions",
	}
	cmd.AddCommand(newSessionNewCmd(), newSessionSwitchCmd(), newSessionListCmd())
	return cmd
}

func newSessionNewCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = args[0]
			}
			resp, err := callDaemon(daemonName, "new-session", struct {
				Name string `json:"name"`
			}{Name: name})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

func newSessionSwitchCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "switch <id>",
		Short: "Switch the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "switch-session", struct {
				ID string `json:"id"`
			}{ID: args[0]})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "list-sessions", nil)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

// callDaemon marshals args (if non-nil), locates the named daemon's
// socket, and makes one ctl call.
func callDaemon(daemonName, op string, args any) (ctl.Response, error) {
	sockPath := daemonSocket(daemonName)
	var raw json.RawMessage
	var err error
	if args != nil {
		raw, err = json.Marshal(args)
		if err != nil {
			return ctl.Response{}, fmt.Errorf("marshal args: %w", err)
		}
	}
	resp, err := ctl.Call(sockPath, ctl.Request{Op: op, Args: raw})
	if err != nil {
		return ctl.Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}
