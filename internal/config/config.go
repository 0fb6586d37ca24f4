package config

import (
	"dario.cat/mergo"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/PizzaHomicide/playcore/internal/ipc"
)

// Config represents the application configuration
type Config struct {
	Player   PlayerConfig   `yaml:"player,omitempty"`
	Selector SelectorConfig `yaml:"selector,omitempty"`
	Headless HeadlessConfig `yaml:"headless,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// PlayerConfig contains settings for the in-process player
type PlayerConfig struct {
	Backend         string `yaml:"backend,omitempty"` // "mpv"
	Path            string `yaml:"path,omitempty"`
	Args            string `yaml:"args,omitempty"`
	ThrottleHz      int    `yaml:"throttle_hz,omitempty"`
	DeinitTimeoutMs int    `yaml:"deinit_timeout_ms,omitempty"`
}

// SelectorConfig contains the rules used to pick between in-process and cross-thread playback.  Booleans are pointers
// so that an explicit false in the config file survives the merge over the defaults.
type SelectorConfig struct {
	ForceType            string `yaml:"force_type,omitempty"` // "", "in-process", "cross-thread"
	EnableCrossThread    *bool  `yaml:"enable_cross_thread,omitempty"`
	EnableForLiveStreams *bool  `yaml:"enable_for_live_streams,omitempty"`
	EnableForVOD         *bool  `yaml:"enable_for_vod,omitempty"`
	MinMemoryMB          int    `yaml:"min_memory_mb,omitempty"`
	Platform             string `yaml:"platform,omitempty"` // "tv" or anything else
}

// HeadlessConfig contains settings for the cross-thread client and the headless host
type HeadlessConfig struct {
	ServiceComponentID  string `yaml:"service_component_id,omitempty"`
	SocketPath          string `yaml:"socket_path,omitempty"`
	EnableStatusUpdates *bool  `yaml:"enable_status_updates,omitempty"`
	PositionIntervalMs  int    `yaml:"position_interval_ms,omitempty"`
}

// LoggingConfig contains log related settings
type LoggingConfig struct {
	Level    string `yaml:"level,omitempty"`
	FilePath string `yaml:"file_path,omitempty"`
	Format   string `yaml:"format,omitempty"` // "json" or "text"
}

// ThrottleInterval converts the throttle rate into the minimum gap between throttled events
func (c PlayerConfig) ThrottleInterval() time.Duration {
	if c.ThrottleHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.ThrottleHz)
}

func (c PlayerConfig) DeinitTimeout() time.Duration {
	if c.DeinitTimeoutMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.DeinitTimeoutMs) * time.Millisecond
}

func (c SelectorConfig) CrossThreadEnabled() bool {
	return boolOr(c.EnableCrossThread, true)
}

func (c SelectorConfig) LiveStreamsEnabled() bool {
	return boolOr(c.EnableForLiveStreams, true)
}

func (c SelectorConfig) VODEnabled() bool {
	return boolOr(c.EnableForVOD, false)
}

// IsTV reports whether the configured platform is a TV class device
func (c SelectorConfig) IsTV() bool {
	return c.Platform == "tv"
}

func (c HeadlessConfig) StatusUpdatesEnabled() bool {
	return boolOr(c.EnableStatusUpdates, true)
}

func (c HeadlessConfig) PositionInterval() time.Duration {
	if c.PositionIntervalMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.PositionIntervalMs) * time.Millisecond
}

// Bool returns a pointer to b, for building configs in code
func Bool(b bool) *bool {
	return &b
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Load builds a configuration struct from multiple sources using these steps:
// 1. Create a base config with default values
// 2. If no config file exists on disk, save the default config to that location
// 3. Apply 'dynamic' properties.  Dynamic properties are those that are determined at runtime, for example log file location which is different per OS.
// 4. Load & merge the config file, overwriting any defaults with user-specified values
// 5. Apply environment variable overrides
func Load() (*Config, error) {
	// 1. Start with base defaults
	cfg := createBaseDefaultConfig()

	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to determine config file path: %w", err)
	}

	// 2. If no config file exists on disk, then write a default one
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// If there is an error saving the default config, then still let the application startup using the defaults.
		_ = save(cfg, configPath)
	}

	// 3. Apply dynamic defaults if necessary
	applyDynamicDefaults(cfg)

	// 4. Load the config from disk and merge it into the base defaults
	fileConfig, err := loadFromDisk(configPath)
	if err != nil {
		return nil, err
	}
	// Overrides the config with any values coming from the loaded file.  Without dereferencing, a *bool set to false
	// in the file replaces a true default instead of being treated as empty.
	if err = mergo.Merge(cfg, fileConfig, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("error merging config loaded from disk: %w", err)
	}

	// 5. Apply the environment variable overrides which take precedence
	if err = applyEnvVarOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDynamicDefaults sets runtime-determined default values for any properties that haven't been explicitly configured.
// Unlike static defaults, these values might change between runs based on the environment or system configuration.
func applyDynamicDefaults(cfg *Config) {
	cfg.Logging.FilePath = defaultLogFilePath()
	cfg.Headless.SocketPath = ipc.SocketPath("playcore-headless.sock")
}

// loadFromDisk loads the YAML config from disk and returns the unmarshalled Config
func loadFromDisk(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return cfg, nil
}

func save(cfg *Config, configPath string) error {
	// Create config dir if not exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// UpdateConfig reads the existing config, applies the update function, and saves it back to disk
func UpdateConfig(updateFn func(*Config)) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("unable to determine config file path: %w", err)
	}

	cfg, err := loadFromDisk(configPath)
	if err != nil {
		return fmt.Errorf("error loading config file from disk: %w", err)
	}

	// Apply the updates
	updateFn(cfg)

	return save(cfg, configPath)
}

// getConfigPath returns the path to the config file.  Uses the environment variable override if present, else tries
// to use OS config location defaults.
func getConfigPath() (string, error) {
	configPath := os.Getenv("PLAYCORE_CONFIG_PATH")
	if configPath != "" {
		return configPath, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "playcore", "config.yaml"), nil
}

// createBaseDefaultConfig creates a config with all default values
func createBaseDefaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			Backend:         "mpv",
			Path:            "mpv",
			ThrottleHz:      60,
			DeinitTimeoutMs: 1500,
		},
		Selector: SelectorConfig{
			EnableCrossThread:    Bool(true),
			EnableForLiveStreams: Bool(true),
			EnableForVOD:         Bool(false),
			MinMemoryMB:          2048,
		},
		Headless: HeadlessConfig{
			ServiceComponentID:  "playcore.headless",
			EnableStatusUpdates: Bool(true),
			PositionIntervalMs:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// defaultLogFilePath returns the path to the log file.  Tries to use expected OS location defaults.
func defaultLogFilePath() string {
	var basePath string
	homedir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to logging in the current directory if home directory cannot be determined
		return filepath.Join(".", "playcore.log")
	}

	switch runtime.GOOS {
	case "windows":
		// Windows:  %LOCALAPPDATA%\playcore\logs
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			basePath = filepath.Join(appData, "playcore", "logs")
		} else {
			basePath = filepath.Join(homedir, "AppData", "local", "playcore", "logs")
		}
	case "darwin":
		// macOS:  ~/Library/Logs/playcore
		basePath = filepath.Join(homedir, "Library", "Logs", "playcore")
	default:
		// Linux/BSD:  XDG_STATE_HOME
		if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
			basePath = filepath.Join(xdgState, "playcore", "logs")
		} else {
			basePath = filepath.Join(homedir, ".local", "state", "playcore", "logs")
		}
	}

	err = os.MkdirAll(basePath, 0700)
	if err != nil {
		// If we failed to create the directory, fallback to logging in the current directory
		return filepath.Join(".", "playcore.log")
	}
	return filepath.Join(basePath, "playcore.log")
}
