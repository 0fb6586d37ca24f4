package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PizzaHomicide/playcore/internal/headless"
	"github.com/PizzaHomicide/playcore/internal/ipc"
	"github.com/PizzaHomicide/playcore/internal/player"
)

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Run the headless player host that cross-thread clients connect to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		socketPath := cfg.Headless.SocketPath
		if override, _ := cmd.Flags().GetString("socket"); override != "" {
			socketPath = override
		}

		l, err := ipc.Listen(socketPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		factory := player.NewFactory(cfg)
		server := headless.NewServer(factory.NewService)

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Headless player host"))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), field("Listening", socketPath))

		return server.Serve(ctx, l)
	},
}

func init() {
	headlessCmd.Flags().String("socket", "", "Socket path (or named pipe) to listen on.  Default: from config")
}
