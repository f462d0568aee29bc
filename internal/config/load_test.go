package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-on-purpose", "savewarden.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config path")
	}

	// No path at all falls back to defaults.
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Global.LogLevel != "info" {
		t.Fatalf("default log level = %q", cfg.Global.LogLevel)
	}
	if cfg.Backup.Format != "zip" {
		t.Fatalf("default format = %q", cfg.Backup.Format)
	}
	if cfg.Backup.DefaultMaxSnapshots != 10 {
		t.Fatalf("default retention = %d", cfg.Backup.DefaultMaxSnapshots)
	}
	if cfg.Watch.StopTimeout != 5*time.Second {
		t.Fatalf("default stop timeout = %v", cfg.Watch.StopTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "savewarden.yaml")
	payload := `
global:
  log_level: debug
  backup_root: /tmp/backups
backup:
  compress: true
  format: tar.zst
games:
  stardew:
    save_path: /saves/stardew
    watch_mode: while_running
    max_snapshots: 3
  elden:
    save_path: /saves/elden
    enabled: false
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Global.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.Global.LogLevel)
	}
	if !cfg.Backup.Compress || cfg.Backup.Format != "tar.zst" {
		t.Fatalf("backup config = %+v", cfg.Backup)
	}

	stardew := cfg.Games["stardew"]
	if stardew.Mode() != WatchWhileRunning {
		t.Fatalf("stardew mode = %q", stardew.Mode())
	}
	if stardew.EffectiveMaxSnapshots(10) != 3 {
		t.Fatalf("stardew retention = %d", stardew.EffectiveMaxSnapshots(10))
	}
	if got := stardew.EffectiveBackupDir("/tmp/backups", "stardew"); got != filepath.Join("/tmp/backups", "stardew") {
		t.Fatalf("stardew backup dir = %q", got)
	}
	if cfg.Games["elden"].IsEnabled() {
		t.Fatal("elden should be disabled")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{Backup: BackupConfig{Format: "rar"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown format")
	}

	cfg = &Config{
		Backup: BackupConfig{Format: "zip"},
		Games:  map[string]GameConfig{"x": {SavePath: "/s", WatchMode: "sometimes"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown watch mode")
	}

	cfg = &Config{
		Backup: BackupConfig{Format: "zip"},
		Games:  map[string]GameConfig{"x": {}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled game without save_path")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "savewarden.yaml")
	three := 3
	cfg := &Config{
		Global: GlobalConfig{LogLevel: "info", BackupRoot: "/tmp/b"},
		Backup: BackupConfig{Format: "zip", DefaultMaxSnapshots: 10},
		Games: map[string]GameConfig{
			"hollow": {SavePath: "/saves/hollow", MaxSnapshots: &three},
		},
	}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	hollow := loaded.Games["hollow"]
	if hollow.SavePath != "/saves/hollow" {
		t.Fatalf("save path = %q", hollow.SavePath)
	}
	if hollow.MaxSnapshots == nil || *hollow.MaxSnapshots != 3 {
		t.Fatalf("max snapshots = %v", hollow.MaxSnapshots)
	}
}
