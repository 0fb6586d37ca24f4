package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/PizzaHomicide/playcore/internal/config"
	"github.com/PizzaHomicide/playcore/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	// No config or logger needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, titleStyle.Render(version.GetVersionInfo()))
		_, _ = fmt.Fprintln(out, field("Platform", runtime.GOOS+"/"+runtime.GOARCH))
		_, _ = fmt.Fprintln(out, field("Go", runtime.Version()))
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the supported environment variables and their current values",
	Args:  cobra.NoArgs,
	// Listing must work even when the current environment holds an invalid value
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, entry := range config.EnvVarHelp() {
			name, desc := entry[0], entry[1]
			value := labelStyle.Render("unset")
			if v := os.Getenv(name); v != "" {
				value = okStyle.Render(v)
			}
			_, _ = fmt.Fprintf(out, "%s=%s\n  %s\n", valueStyle.Render(name), value, labelStyle.Render(desc))
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("short", "s", false, "Print only the version")
}
