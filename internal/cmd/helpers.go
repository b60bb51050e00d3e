package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmux/openmux/internal/ctl"
	"github.com/openmux/openmux/internal/socketdir"
)

// daemonSocket resolves a daemon instance name to its control socket path.
func daemonSocket(name string) string {
	if name == "" {
		name = "main"
	}
	return socketdir.Path(socketdir.TypeDaemon, name)
}

// printResponse pretty-prints a successful ctl.Response's Data as JSON.
func printResponse(cmd *cobra.Command, resp ctl.Response) error {
	if len(resp.Data) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	var pretty any
	if err := json.Unmarshal(resp.Data, &pretty); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
