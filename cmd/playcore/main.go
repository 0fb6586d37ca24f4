package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PizzaHomicide/playcore/internal/config"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/version"
)

var (
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:           "playcore",
	Short:         "Video playback control core with in-process and headless players",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		// Load configuration
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Initialise logger
		logger, err = log.New(log.Config{
			Level:    cfg.Logging.Level,
			FilePath: cfg.Logging.FilePath,
			Format:   cfg.Logging.Format,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise logger: %w", err)
		}

		// Set the default global logger
		log.SetDefaultLogger(logger)
		log.Info("Starting up playcore", "version", version.Version, "build_time", version.BuildTime, "command", cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			log.Info("playcore shutting down")
			logger.Close()
		}
	},
}

func main() {
	rootCmd.AddCommand(recommendCmd, playCmd, headlessCmd, envCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error("Command failed", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}
