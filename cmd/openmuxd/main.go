// Command openmuxd is the terminal multiplexer engine's process
// entrypoint: it runs either as the long-lived daemon (`openmuxd
// daemon`) or as a thin client issuing one control call against a
// running daemon (`openmuxd session ...`, `openmuxd pane ...`, `openmuxd
// status ...`).
package main

import (
	"fmt"
	"os"

	"github.com/openmux/openmux/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "openmuxd:", err)
		os.Exit(1)
	}
}
