// Package config loads the extension host's configuration, following the
// teacher's viper idiom: defaults on a private viper.New(), an optional YAML
// file, then environment variables layered on top.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the extension host's runtime configuration.
type Config struct {
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	ReleaseMode bool     `mapstructure:"release_mode"`

	// StorePath is the sqlite file backing internal/store's PersistentStore.
	StorePath string `mapstructure:"store_path"`

	// ExtensionsDir is the root from which each extension's ExtensionPath
	// (<ExtensionsDir>/<id>, via the manager's ExtensionRoot) is derived and
	// handed to the extension. ZIP installs are persisted in the store, not
	// unpacked here, and native binaries are looked up under BinaryDir.
	ExtensionsDir string `mapstructure:"extensions_dir"`

	// BinaryDir holds native "service"-type extension executables, looked
	// up by the Module Loader's go-plugin dispatch path.
	BinaryDir string `mapstructure:"binary_dir"`

	// RegistryURL is the well-known catalog document the Registry Fetcher
	// polls.
	RegistryURL string `mapstructure:"registry_url"`

	// ExtensionsBaseURL is the HTTP base the Code Fetcher resolves manifest
	// entry/files paths against.
	ExtensionsBaseURL string `mapstructure:"extensions_base_url"`

	// HostLocale seeds the AutoInstaller's locale detection on first run.
	HostLocale string `mapstructure:"host_locale"`

	// LogBufferCapacity bounds the Logger bridge's ring buffer.
	LogBufferCapacity int `mapstructure:"log_buffer_capacity"`
}

// Load reads configuration from ./config/config.yaml (or ./config.yaml),
// then PYXISEXT_-prefixed environment variables, following the teacher's
// Load() shape.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8088)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("release_mode", false)
	v.SetDefault("store_path", "./data/extensions.db")
	v.SetDefault("extensions_dir", "./data/extensions")
	v.SetDefault("binary_dir", "./data/extension-binaries")
	v.SetDefault("registry_url", "https://registry.example.invalid/registry.json")
	v.SetDefault("extensions_base_url", "https://registry.example.invalid/packages")
	v.SetDefault("host_locale", "en")
	v.SetDefault("log_buffer_capacity", 500)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("pyxisext")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("store_path")
	v.BindEnv("extensions_dir")
	v.BindEnv("binary_dir")
	v.BindEnv("registry_url")
	v.BindEnv("extensions_base_url")
	v.BindEnv("host_locale")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	for _, dir := range []string{filepath.Dir(cfg.StorePath), cfg.ExtensionsDir, cfg.BinaryDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}
