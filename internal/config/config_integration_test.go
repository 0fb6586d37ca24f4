package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestConfig(t *testing.T) string {
	t.Helper()

	tmpConfigPath := filepath.Join(t.TempDir(), "config.yaml")
	setEnv(t, "PLAYCORE_CONFIG_PATH", tmpConfigPath)

	t.Cleanup(func() {
		cleanupEnvVars(t)
	})

	return tmpConfigPath
}

// TestConfigIntegration tests the config package with actual file operations
// This test uses a temporary directory to avoid interfering with real user configs
func TestConfigIntegration(t *testing.T) {
	// Test loading when no config exists (should create default)
	t.Run("LoadDefaultConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		config := loadConfig(t)

		// Verify default values
		assert.Equal(t, "mpv", config.Player.Backend)
		assert.Equal(t, "mpv", config.Player.Path)
		assert.Equal(t, time.Second/60, config.Player.ThrottleInterval())
		assert.Equal(t, 1500*time.Millisecond, config.Player.DeinitTimeout())
		assert.True(t, config.Selector.CrossThreadEnabled())
		assert.True(t, config.Selector.LiveStreamsEnabled())
		assert.False(t, config.Selector.VODEnabled())
		assert.Equal(t, 2048, config.Selector.MinMemoryMB)
		assert.Equal(t, "playcore.headless", config.Headless.ServiceComponentID)
		assert.True(t, config.Headless.StatusUpdatesEnabled())
		assert.Equal(t, 100*time.Millisecond, config.Headless.PositionInterval())
		assert.NotEmpty(t, config.Headless.SocketPath)
		assert.Equal(t, "info", config.Logging.Level)
		assert.Equal(t, "json", config.Logging.Format)
		assert.NotEmpty(t, config.Logging.FilePath)

		// Verify file was created
		if _, err := os.Stat(tmpConfigPath); os.IsNotExist(err) {
			t.Errorf("Config file was not created at %s", tmpConfigPath)
		}

		// Load the file from disk to assert that the 'dynamic' configurations were not saved when the default config was written
		savedConfig, _ := loadFromDisk(tmpConfigPath)
		assert.Empty(t, savedConfig.Logging.FilePath)
		assert.Empty(t, savedConfig.Headless.SocketPath)
	})

	// Test saving and loading custom values
	t.Run("SaveAndLoadConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		// Create a config with custom values
		customConfig := &Config{
			Player: PlayerConfig{
				Path:       "/usr/local/bin/mpv",
				Args:       "--fs",
				ThrottleHz: 30,
			},
			Selector: SelectorConfig{
				ForceType:         "in-process",
				EnableCrossThread: Bool(false),
				EnableForVOD:      Bool(true),
				Platform:          "tv",
			},
			Headless: HeadlessConfig{
				SocketPath:          "/run/playcore.sock",
				EnableStatusUpdates: Bool(false),
			},
			Logging: LoggingConfig{
				Level:    "error",
				FilePath: "/var/log/playcore.log",
			},
		}

		saveConfig(t, customConfig, tmpConfigPath)
		loadedConfig := loadConfig(t)

		// Verify loaded values match what we saved
		assert.Equal(t, "/usr/local/bin/mpv", loadedConfig.Player.Path)
		assert.Equal(t, "--fs", loadedConfig.Player.Args)
		assert.Equal(t, time.Second/30, loadedConfig.Player.ThrottleInterval())
		assert.Equal(t, "in-process", loadedConfig.Selector.ForceType)
		assert.False(t, loadedConfig.Selector.CrossThreadEnabled(), "explicit false must survive the merge")
		assert.True(t, loadedConfig.Selector.VODEnabled())
		assert.True(t, loadedConfig.Selector.LiveStreamsEnabled(), "unset values keep their default")
		assert.True(t, loadedConfig.Selector.IsTV())
		assert.Equal(t, "/run/playcore.sock", loadedConfig.Headless.SocketPath)
		assert.False(t, loadedConfig.Headless.StatusUpdatesEnabled())
		assert.Equal(t, "error", loadedConfig.Logging.Level)
		assert.Equal(t, "/var/log/playcore.log", loadedConfig.Logging.FilePath)
	})

	// Test invalid YAML handling
	t.Run("InvalidConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		// Write invalid YAML to the config file
		if err := os.WriteFile(tmpConfigPath, []byte("invalid: yaml: ["), 0600); err != nil {
			t.Fatalf("Failed to write invalid config: %v", err)
		}

		// Attempt to load the invalid config
		_, err := Load()
		if err == nil {
			t.Error("Expected error when loading invalid YAML, got nil")
		}
	})

	t.Run("EnvironmentVariableOverrides", func(t *testing.T) {
		setupTestConfig(t)

		setEnv(t, "PLAYCORE_CONFIG_PLAYER_PATH", "/mpv")
		setEnv(t, "PLAYCORE_CONFIG_PLAYER_ARGS", "--fs")
		setEnv(t, "PLAYCORE_CONFIG_PLAYER_THROTTLE_HZ", "10")
		setEnv(t, "PLAYCORE_CONFIG_SELECTOR_FORCE_TYPE", "cross-thread")
		setEnv(t, "PLAYCORE_CONFIG_SELECTOR_ENABLE_CROSS_THREAD", "false")
		setEnv(t, "PLAYCORE_CONFIG_SELECTOR_PLATFORM", "tv")
		setEnv(t, "PLAYCORE_CONFIG_HEADLESS_SOCKET_PATH", "/tmp/host.sock")
		setEnv(t, "PLAYCORE_CONFIG_LOGGING_LEVEL", "warn")
		setEnv(t, "PLAYCORE_CONFIG_LOGGING_FILE_PATH", "/playcore.log")
		setEnv(t, "PLAYCORE_CONFIG_LOGGING_FORMAT", "text")

		config := loadConfig(t)

		assert.Equal(t, "/mpv", config.Player.Path)
		assert.Equal(t, "--fs", config.Player.Args)
		assert.Equal(t, 100*time.Millisecond, config.Player.ThrottleInterval())
		assert.Equal(t, "cross-thread", config.Selector.ForceType)
		assert.False(t, config.Selector.CrossThreadEnabled())
		assert.True(t, config.Selector.IsTV())
		assert.Equal(t, "/tmp/host.sock", config.Headless.SocketPath)
		assert.Equal(t, "warn", config.Logging.Level)
		assert.Equal(t, "/playcore.log", config.Logging.FilePath)
		assert.Equal(t, "text", config.Logging.Format)

		// Remove the logging level env var, then reload the config.
		// This ensures that the env var overrides were not persisted to disk.
		unsetEnv(t, "PLAYCORE_CONFIG_LOGGING_LEVEL")

		config = loadConfig(t)

		assert.Equal(t, "info", config.Logging.Level)
	})

	t.Run("InvalidEnvironmentVariable", func(t *testing.T) {
		setupTestConfig(t)
		setEnv(t, "PLAYCORE_CONFIG_SELECTOR_ENABLE_CROSS_THREAD", "sometimes")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PLAYCORE_CONFIG_SELECTOR_ENABLE_CROSS_THREAD")
	})

	t.Run("ModifyConfig", func(t *testing.T) {
		setupTestConfig(t)
		config := loadConfig(t)

		assert.Empty(t, config.Selector.ForceType)

		err := UpdateConfig(func(config *Config) {
			config.Selector.ForceType = "in-process"
		})
		if err != nil {
			t.Fatalf("Failed to update config: %v", err)
		}

		// Reload the config and ensure it has the new value
		config = loadConfig(t)
		assert.Equal(t, "in-process", config.Selector.ForceType)
	})
}

func TestEnvVarHelp(t *testing.T) {
	help := EnvVarHelp()
	require.Len(t, help, len(supportedEnvVars))
	assert.Equal(t, "PLAYCORE_CONFIG_PATH", help[0][0])
	for _, entry := range help {
		assert.True(t, strings.HasPrefix(entry[0], "PLAYCORE_CONFIG_"))
		assert.NotEmpty(t, entry[1])
	}
}

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	err := os.Setenv(key, value)
	if err != nil {
		t.Fatalf("Failed to set environment variable: %v", err)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	err := os.Unsetenv(key)
	if err != nil {
		t.Fatalf("Failed to unset environment variable: %v", err)
	}
}

func saveConfig(t *testing.T, config *Config, configPath string) {
	t.Helper()
	if err := save(config, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
}

func loadConfig(t *testing.T) *Config {
	t.Helper()
	config, err := Load()
	if err != nil {
		t.Fatalf("Loading of config failed: %v", err)
	}
	return config
}

// Removes any env vars with the PLAYCORE_CONFIG prefix to ensure test isolation
func cleanupEnvVars(t *testing.T) {
	t.Helper()

	for _, envVar := range os.Environ() {
		if key := strings.Split(envVar, "=")[0]; strings.HasPrefix(key, "PLAYCORE_CONFIG") {
			unsetEnv(t, key)
		}
	}
}
