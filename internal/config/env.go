package config

import (
	"fmt"
	"os"
	"strconv"
)

type envVar struct {
	name  string
	desc  string
	apply func(*Config, string) error
}

var supportedEnvVars = []envVar{
	{
		// Only here for documentation purposes.  Does not override any values in the config as this environment variable
		// points to where the config should be loaded.  It is handled prior to loading the config.
		name:  "PLAYCORE_CONFIG_PATH",
		desc:  "Sets the path to the config file.  Default: OS-specific config directory",
		apply: func(c *Config, s string) error { return nil }, // Special case, no-op
	},
	{
		name:  "PLAYCORE_CONFIG_PLAYER_BACKEND",
		desc:  "Sets the in-process player backend.  Only `mpv` is available.  Default: mpv",
		apply: func(c *Config, s string) error { c.Player.Backend = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_PLAYER_PATH",
		desc:  "Sets the path to the mpv binary.  Default: mpv",
		apply: func(c *Config, s string) error { c.Player.Path = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_PLAYER_ARGS",
		desc:  "Sets extra arguments passed to mpv.  Default: None",
		apply: func(c *Config, s string) error { c.Player.Args = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_PLAYER_THROTTLE_HZ",
		desc:  "Sets the maximum rate of timeupdate events delivered to listeners.  Default: 60",
		apply: func(c *Config, s string) error { return setInt(&c.Player.ThrottleHz, s) },
	},
	{
		name:  "PLAYCORE_CONFIG_SELECTOR_FORCE_TYPE",
		desc:  "Forces the player type.  One of `in-process` or `cross-thread`.  Default: None",
		apply: func(c *Config, s string) error { c.Selector.ForceType = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_SELECTOR_ENABLE_CROSS_THREAD",
		desc:  "Enables the cross-thread player.  Default: true",
		apply: func(c *Config, s string) error { return setBool(&c.Selector.EnableCrossThread, s) },
	},
	{
		name:  "PLAYCORE_CONFIG_SELECTOR_PLATFORM",
		desc:  "Sets the device class.  `tv` allows cross-thread playback.  Default: None",
		apply: func(c *Config, s string) error { c.Selector.Platform = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_HEADLESS_SOCKET_PATH",
		desc:  "Sets the socket (or named pipe) of the headless player host.  Default: OS-specific runtime directory",
		apply: func(c *Config, s string) error { c.Headless.SocketPath = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_LOGGING_LEVEL",
		desc:  "Sets the logging level.  One of: trace, debug, info, warn, error.  Default: info",
		apply: func(c *Config, s string) error { c.Logging.Level = s; return nil },
	},
	{
		name:  "PLAYCORE_CONFIG_LOGGING_FILE_PATH",
		desc:  "Sets the logging file path.  Default: OS-specific",
		apply: func(c *Config, s string) error { c.Logging.FilePath = s; return nil },
	},
	{
		name: "PLAYCORE_CONFIG_LOGGING_FORMAT",
		desc: "Sets the log line format.  One of: json, text.  Default: json",
		apply: func(c *Config, s string) error {
			if s != "json" && s != "text" {
				return fmt.Errorf("unknown log format %q", s)
			}
			c.Logging.Format = s
			return nil
		},
	},
}

func applyEnvVarOverrides(c *Config) error {
	for _, envVar := range supportedEnvVars {
		if value := os.Getenv(envVar.name); value != "" {
			if err := envVar.apply(c, value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar.name, err)
			}
		}
	}
	return nil
}

// EnvVarHelp returns the supported environment variables and their descriptions, in documentation order
func EnvVarHelp() [][2]string {
	help := make([][2]string, 0, len(supportedEnvVars))
	for _, envVar := range supportedEnvVars {
		help = append(help, [2]string{envVar.name, envVar.desc})
	}
	return help
}

func setBool(dst **bool, s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = &b
	return nil
}

func setInt(dst *int, s string) error {
	i, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}
