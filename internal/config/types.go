package config

import (
	"path/filepath"
	"time"
)

// Watch modes for a configured game.
const (
	WatchAlways       = "always"
	WatchWhileRunning = "while_running"
	WatchDisabled     = "disabled"
)

// Config is the root configuration schema.
type Config struct {
	Global GlobalConfig          `mapstructure:"global" yaml:"global"`
	Backup BackupConfig          `mapstructure:"backup" yaml:"backup"`
	Watch  WatchConfig           `mapstructure:"watch" yaml:"watch"`
	Games  map[string]GameConfig `mapstructure:"games" yaml:"games"`
}

type GlobalConfig struct {
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"` // json or console
	LogFile      string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LockFile     string `mapstructure:"lock_file" yaml:"lock_file,omitempty"`
	BackupRoot   string `mapstructure:"backup_root" yaml:"backup_root,omitempty"`
	ManifestPath string `mapstructure:"manifest_path" yaml:"manifest_path,omitempty"` // extra game definitions
}

type BackupConfig struct {
	Compress            bool   `mapstructure:"compress" yaml:"compress"`
	Format              string `mapstructure:"format" yaml:"format"` // zip, tar.gz, tar.zst
	Encryption          bool   `mapstructure:"encryption" yaml:"encryption"`
	EncryptionKey       string `mapstructure:"encryption_key" yaml:"encryption_key,omitempty"`
	DefaultMaxSnapshots int    `mapstructure:"default_max_snapshots" yaml:"default_max_snapshots"`
}

type WatchConfig struct {
	ProcessPollInterval time.Duration `mapstructure:"process_poll_interval" yaml:"process_poll_interval"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	EventBuffer         int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// GameConfig is the per-game configuration. Pointer fields distinguish
// "not set, use the default" from an explicit zero.
type GameConfig struct {
	SavePath     string `mapstructure:"save_path" yaml:"save_path,omitempty"`
	BackupDir    string `mapstructure:"backup_dir" yaml:"backup_dir,omitempty"`
	WatchMode    string `mapstructure:"watch_mode" yaml:"watch_mode,omitempty"`
	MaxSnapshots *int   `mapstructure:"max_snapshots" yaml:"max_snapshots,omitempty"`
	Enabled      *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// EffectiveBackupDir returns the game's backup directory, defaulting to
// {root}/{gameID}.
func (g GameConfig) EffectiveBackupDir(root, gameID string) string {
	if g.BackupDir != "" {
		return g.BackupDir
	}
	return filepath.Join(root, gameID)
}

// EffectiveMaxSnapshots returns the game's retention limit, falling back
// to the global default.
func (g GameConfig) EffectiveMaxSnapshots(def int) int {
	if g.MaxSnapshots != nil {
		return *g.MaxSnapshots
	}
	return def
}

// Mode returns the game's watch mode, defaulting to always.
func (g GameConfig) Mode() string {
	if g.WatchMode == "" {
		return WatchAlways
	}
	return g.WatchMode
}

// IsEnabled reports whether the game participates at all. Unset counts as
// enabled.
func (g GameConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}
