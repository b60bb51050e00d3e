package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openmux/openmux/internal/config"
	"github.com/openmux/openmux/internal/engine"
	"github.com/openmux/openmux/internal/socketdir"
)

func newDaemonCmd() *cobra.Command {
	var name string
	var workers int

	cmd := &cobra.Command{
		Use:   "daemon [--name=<name>]",
		Short: "Run the openmuxd engine daemon",
		Long:  "Starts the engine (scrollback, worker pool, PTY service, layout, sessions) and listens on a control socket for subcommands like 'session' and 'pane' to drive it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = "main"
			}
			return runDaemon(name, workers)
		},
	}

	cmd.Flags().StringVar(&name, "name", "main", "Daemon instance name, used in its socket filename")
	cmd.Flags().IntVar(&workers, "workers", 4, "Emulator worker pool size")
	return cmd
}

func runDaemon(name string, workers int) error {
	e, err := engine.New(config.SessionsDir(), workers)
	if err != nil {
		return fmt.Errorf("daemon: start engine: %w", err)
	}
	defer e.Shutdown()

	if err := e.Bootstrap(); err != nil {
		return fmt.Errorf("daemon: bootstrap sessions: %w", err)
	}
	go e.Sessions.RunAutosaveLoop()

	sockPath := socketdir.Path(socketdir.TypeDaemon, name)
	os.Remove(sockPath)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", sockPath, err)
	}
	defer listener.Close()
	defer os.Remove(sockPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		listener.Close()
	}()

	srv := &daemonServer{engine: e}
	for {
		conn, err := listener.Accept()
		if err != nil {
			return nil // listener closed, clean shutdown
		}
		go srv.handle(conn)
	}
}
