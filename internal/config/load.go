package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SAVEWARDEN"

	appDirName = "savewarden"
)

// Load reads configuration from a file, env vars, and defaults. An empty
// path falls back to SAVEWARDEN_CONFIG, then the usual candidate locations;
// no file at all is fine and yields pure defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		vp.SetConfigFile(resolved)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Backup.EncryptionKey = os.ExpandEnv(cfg.Backup.EncryptionKey)
	applyPostLoadDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"savewarden.yaml",
		"savewarden.yml",
		"savewarden.toml",
		"savewarden.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, appDirName)
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

// DefaultPath is where Save writes when the config was loaded from defaults
// only, and where detect persists newly discovered games.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "savewarden.yaml"
	}
	return filepath.Join(configDir, appDirName, "savewarden.yaml")
}

// ResolveBackupRoot returns the configured backup root, defaulting to a
// backups directory next to the config file.
func (c *Config) ResolveBackupRoot() string {
	if c.Global.BackupRoot != "" {
		return c.Global.BackupRoot
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "backups"
	}
	return filepath.Join(configDir, appDirName, "backups")
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "console")
	vp.SetDefault("backup.compress", false)
	vp.SetDefault("backup.format", "zip")
	vp.SetDefault("backup.default_max_snapshots", 10)
	vp.SetDefault("watch.process_poll_interval", "10s")
	vp.SetDefault("watch.stop_timeout", "5s")
	vp.SetDefault("watch.event_buffer", 64)
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Watch.ProcessPollInterval == 0 {
		cfg.Watch.ProcessPollInterval = 10 * time.Second
	}
	if cfg.Watch.StopTimeout == 0 {
		cfg.Watch.StopTimeout = 5 * time.Second
	}
	if cfg.Watch.EventBuffer == 0 {
		cfg.Watch.EventBuffer = 64
	}
	if cfg.Backup.Format == "" {
		cfg.Backup.Format = "zip"
	}
}

// Validate rejects configurations the engines would choke on later.
func (c *Config) Validate() error {
	switch c.Backup.Format {
	case "zip", "tar.gz", "tar.zst":
	default:
		return fmt.Errorf("invalid backup format %q (want zip, tar.gz, or tar.zst)", c.Backup.Format)
	}
	if c.Backup.Encryption && c.Backup.EncryptionKey == "" {
		return fmt.Errorf("encryption is enabled but encryption_key is empty")
	}
	for id, game := range c.Games {
		switch game.WatchMode {
		case "", WatchAlways, WatchWhileRunning, WatchDisabled:
		default:
			return fmt.Errorf("game %s: invalid watch_mode %q", id, game.WatchMode)
		}
		if game.IsEnabled() && game.SavePath == "" {
			return fmt.Errorf("game %s: save_path is required", id)
		}
	}
	return nil
}
