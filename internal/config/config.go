// Package config loads snapshot configuration from YAML files and
// SNAPSHOT_-prefixed environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "SNAPSHOT"

// configFilePath stores the path to the loaded config file
var configFilePath string

// Init initializes the global configuration.
// It searches for configuration files in priority order:
//  1. Directory specified by SNAPSHOT_CONFIG_DIR environment variable
//  2. ~/.config/snapshot/
//  3. Current working directory (.)
//
// If no config file is found, defaults are used.
// If a config file exists but is invalid or unreadable, Init returns an error.
func Init() error {
	v := viper.GetViper()
	configure(v)

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			configFilePath = ""
			return nil
		}
		return fmt.Errorf("failed to read config; %w", err)
	}

	configFilePath = v.ConfigFileUsed()
	slog.Info("config initialized", "file", configFilePath)

	return nil
}

// configure applies name, search paths, env binding and defaults to v.
func configure(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if envPath := os.Getenv(EnvPrefix + "_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}
	if dir := ConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
}

// ConfigFilePath returns the path to the loaded config file,
// or empty string if using defaults only.
func ConfigFilePath() string {
	return configFilePath
}

// Reset clears the configuration state for testing purposes.
func Reset() {
	viper.Reset()
	configFilePath = ""
}

// Get returns the typed view of the global configuration.
func Get() (*Config, error) {
	return unmarshalConfig(viper.GetViper())
}

// GetString returns the string value for the given key.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns the integer value for the given key.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns the boolean value for the given key.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set sets a value for the given key, overriding defaults and config file values.
func Set(key string, value any) {
	viper.Set(key, value)
}

// GetPath returns the string value for the given key with ~ expanded to $HOME.
func GetPath(key string) string {
	return expandHome(viper.GetString(key))
}

// GetAllSettings returns all configuration settings as a map.
func GetAllSettings() map[string]any {
	return viper.AllSettings()
}

// ExpandPath expands a leading ~ in path to the user's home directory.
func ExpandPath(path string) string {
	return expandHome(path)
}

// expandHome expands a leading ~ in path to the user's home directory.
// Only "~" alone or "~/..." is expanded; "~user" is left as is.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	return filepath.Join(home, path[2:])
}

// ConfigDir returns the default config directory path.
func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, ".config", "snapshot")
}

// GetConfigPath returns the loaded config file, or the default location when
// running on defaults.
func GetConfigPath() string {
	if configFilePath != "" {
		return configFilePath
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ConfigExists reports whether a config file exists at GetConfigPath.
func ConfigExists() bool {
	_, err := os.Stat(GetConfigPath())
	return err == nil
}

// Reload re-reads the global configuration from disk.
// On failure, the previous configuration is retained and a
// config.reload_failed event is published.
func Reload() error {
	previous, _ := Get()
	current := viper.AllSettings()

	restore := func() {
		for key, value := range current {
			viper.Set(key, value)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		restore()
		slog.Error("config reload failed; retaining previous values", "error", err)
		publishConfigReloadFailed(err)
		return fmt.Errorf("failed to reload config; %w", err)
	}

	next, err := Get()
	if err != nil {
		restore()
		slog.Error("reloaded config is invalid; retaining previous values", "error", err)
		publishConfigReloadFailed(err)
		return fmt.Errorf("failed to reload config; %w", err)
	}

	slog.Info("config reloaded", "file", viper.ConfigFileUsed())
	if previous != nil {
		publishConfigReloaded(previous, next)
	}
	return nil
}
