package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// fallbackCols/fallbackRows are used when stdout isn't a real terminal
// (piped output, a non-interactive caller) and the user didn't pass
// explicit --cols/--rows.
const (
	fallbackCols = 80
	fallbackRows = 24
)

// terminalSize reports the caller's own terminal dimensions, grounded
// on dcosson-h2/internal/session/session.go's term.GetSize(fd) use for
// sizing a freshly-attached VT: a pane created from an interactive CLI
// invocation should start at the size of the terminal the user is
// actually looking at, not a guessed default.
func terminalSize() (cols, rows int) {
	if c, r, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return c, r
	}
	return fallbackCols, fallbackRows
}

func newPaneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pane",
		Short: "Manage panes in the active workspace",
	}
	cmd.AddCommand(
		newPaneNewCmd(),
		newPaneCloseCmd(),
		newPaneNavigateCmd(),
		newPaneFocusCmd(),
	)
	return cmd
}

func newPaneNewCmd() *cobra.Command {
	var daemonName, title, shell, cwd string
	var cols, rows int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new pane (spawns a shell on it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cols == 0 || rows == 0 {
				cols, rows = terminalSize()
			}
			resp, err := callDaemon(daemonName, "new-pane", struct {
				Title string `json:"title"`
				Shell string `json:"shell"`
				Cwd   string `json:"cwd"`
				Cols  int    `json:"cols"`
				Rows  int    `json:"rows"`
			}{Title: title, Shell: shell, Cwd: cwd, Cols: cols, Rows: rows})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	cmd.Flags().StringVar(&title, "title", "", "Pane title")
	cmd.Flags().StringVar(&shell, "shell", "", "Shell/command to run (default $SHELL)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory")
	cmd.Flags().IntVar(&cols, "cols", 0, "Initial column count (0: use this terminal's size)")
	cmd.Flags().IntVar(&rows, "rows", 0, "Initial row count (0: use this terminal's size)")
	return cmd
}

func newPaneCloseCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the focused pane",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "close-pane", nil)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

func newPaneNavigateCmd() *cobra.Command {
	var daemonName string
	cmd := &cobra.Command{
		Use:   "navigate <north|south|east|west>",
		Short: "Move focus in the active workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "navigate", struct {
				Direction string `json:"direction"`
			}{Direction: args[0]})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	return cmd
}

func newPaneFocusCmd() *cobra.Command {
	var daemonName string
	var paneID int
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Focus a specific pane by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callDaemon(daemonName, "focus", struct {
				PaneID int `json:"paneId"`
			}{PaneID: paneID})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&daemonName, "daemon", "main", "Daemon instance to target")
	cmd.Flags().IntVar(&paneID, "id", 0, "Pane id to focus")
	return cmd
}
