// Package config loads stitchsync settings from a YAML file and
// STITCH_* environment variables via viper.
//
// All polling intervals live here as configuration, not hardcoded
// literals. Missing remote credentials are valid configuration: the
// system then runs in permanently-offline mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	// DBPath is the local SQLite database file.
	DBPath string `mapstructure:"db_path"`

	Remote struct {
		// URL is the base URL of the remote record store. Empty means
		// permanently offline.
		URL string `mapstructure:"url"`
		// Token is the bearer credential for the remote store.
		Token string `mapstructure:"token"`
		// Timeout bounds each individual remote call.
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"remote"`

	Sync struct {
		// ProbeInterval is the connectivity check period.
		ProbeInterval time.Duration `mapstructure:"probe_interval"`
		// Interval is the auto-sync period.
		Interval time.Duration `mapstructure:"interval"`
		// AdoptRemote materializes remote-only records during pull.
		AdoptRemote bool `mapstructure:"adopt_remote"`
	} `mapstructure:"sync"`

	Dashboard struct {
		// Port for the websocket dashboard served by `stitch serve`.
		Port int `mapstructure:"port"`
	} `mapstructure:"dashboard"`

	// LogFile is where the serve command writes its rotating log.
	// Empty means stderr only.
	LogFile string `mapstructure:"log_file"`

	// File is the config file the settings were read from, when one
	// existed. Set by Load, not by the file itself.
	File string `mapstructure:"-"`
}

// DefaultDir returns the per-user stitchsync directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stitchsync"
	}
	return filepath.Join(home, ".stitchsync")
}

// setDefaults registers the default values on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "stitchsync.db"))
	// Credentials default empty so the keys exist for env overrides.
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("sync.probe_interval", 30*time.Second)
	v.SetDefault("sync.interval", 60*time.Second)
	v.SetDefault("sync.adopt_remote", false)
	v.SetDefault("dashboard.port", 8480)
}

// Load reads configuration from the given file path. An empty path
// searches for stitch.yaml in the current directory and DefaultDir().
// A missing config file is not an error: defaults plus environment
// variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STITCH")
	// Nested keys map to underscored env names: remote.url becomes
	// STITCH_REMOTE_URL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stitch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}
