// Package app wires the engines together behind the operations the CLI
// exposes: run the watch daemon, snapshot on demand, restore, prune, and
// report status.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/savewarden/savewarden/internal/backup"
	"github.com/savewarden/savewarden/internal/config"
	"github.com/savewarden/savewarden/internal/cryptoutil"
	"github.com/savewarden/savewarden/internal/detect"
	"github.com/savewarden/savewarden/internal/lock"
	"github.com/savewarden/savewarden/internal/registry"
	"github.com/savewarden/savewarden/internal/restore"
	"github.com/savewarden/savewarden/internal/watcher"
)

// Event is one user-facing notification from the watch pipeline. The
// channel stands in for the original tray popup: a bounded queue consumed by
// a single rendering loop.
type Event struct {
	GameID  string
	Message string
}

type App struct {
	Cfg      *config.Config
	Registry *registry.Registry
	Backup   *backup.Engine
	Watcher  *watcher.Supervisor
	Restore  *restore.Engine
	Log      zerolog.Logger

	// ConfigPath is where Detect persists discovered games; empty selects
	// the default location.
	ConfigPath string

	events chan Event
}

// New builds the application service from loaded configuration. The watch
// supervisor publishes onto the app's bounded event channel; when the
// channel is full events are dropped rather than stalling a watch worker.
func New(cfg *config.Config, reg *registry.Registry, log zerolog.Logger) (*App, error) {
	var key []byte
	if cfg.Backup.Encryption {
		parsed, err := cryptoutil.ParseKey(cfg.Backup.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		key = parsed
	}

	a := &App{
		Cfg:      cfg,
		Registry: reg,
		Log:      log,
		events:   make(chan Event, cfg.Watch.EventBuffer),
	}
	a.Backup = backup.NewEngine(log, cfg.Backup.Format, key)
	a.Restore = restore.NewEngine(a.Backup, key, log)
	a.Watcher = watcher.New(a.Backup, nil, a.publish, cfg.Watch.StopTimeout, log)
	return a, nil
}

// Events exposes the notification stream for an external consumer. Run's
// renderer drains it when nothing else does.
func (a *App) Events() <-chan Event {
	return a.events
}

func (a *App) publish(gameID, message string) {
	select {
	case a.events <- Event{GameID: gameID, Message: message}:
	default:
		a.Log.Debug().Str("game", gameID).Str("message", message).Msg("event queue full, dropped")
	}
}

// SaveNow snapshots a game's saves immediately and rotates its backups.
// Save slots matching the game's pattern are snapshotted individually; a
// save directory without matching slots is snapshotted whole. Returns the
// snapshot paths created.
func (a *App) SaveNow(gameID string) ([]string, error) {
	game, ok := a.Cfg.Games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s is not configured", gameID)
	}
	if game.SavePath == "" {
		return nil, fmt.Errorf("game %s has no save_path", gameID)
	}
	backupDir := game.EffectiveBackupDir(a.Cfg.ResolveBackupRoot(), gameID)

	pattern := "*"
	if def, ok := a.Registry.Get(gameID); ok {
		pattern = def.Pattern()
	}

	var created []string
	var firstErr error
	for _, slot := range a.saveSlots(game.SavePath, pattern) {
		path, err := a.Backup.CreateSnapshot(slot, backupDir, a.Cfg.Backup.Compress)
		if err != nil {
			a.Log.Error().Err(err).Str("game", gameID).Str("slot", slot).Msg("snapshot failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, path)
	}

	if deleted := a.Backup.RotateBackups(backupDir, game.EffectiveMaxSnapshots(a.Cfg.Backup.DefaultMaxSnapshots)); deleted > 0 {
		a.Log.Info().Str("game", gameID).Int("deleted", deleted).Msg("rotated old snapshots")
	}
	if len(created) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return created, nil
}

// saveSlots returns the directories to snapshot for one game: the
// pattern-matched subdirectories of saveDir, or saveDir itself when none
// match.
func (a *App) saveSlots(saveDir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(saveDir, pattern))
	if err != nil {
		matches = nil
	}
	var slots []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			slots = append(slots, m)
		}
	}
	if len(slots) == 0 {
		return []string{saveDir}
	}
	sort.Strings(slots)
	return slots
}

// StartWatchers starts a watch for every enabled always-mode game. Games
// whose save directory is missing are logged and skipped.
func (a *App) StartWatchers() int {
	started := 0
	for _, gameID := range a.sortedGameIDs() {
		game := a.Cfg.Games[gameID]
		if !game.IsEnabled() || game.Mode() != config.WatchAlways {
			continue
		}
		backupDir := game.EffectiveBackupDir(a.Cfg.ResolveBackupRoot(), gameID)
		if a.Watcher.StartWatching(gameID, game.SavePath, backupDir) {
			started++
		}
	}
	return started
}

// Run is the daemon loop: acquire the instance lock, start watchers, then
// render events and poll processes until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	started := a.StartWatchers()
	a.Log.Info().Int("watching", started).Msg("savewarden running")
	defer a.Watcher.StopAll()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return a.renderEvents(ctx) })
	eg.Go(func() error { return a.pollProcesses(ctx) })
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// renderEvents is the single consumer of the event queue while the daemon
// runs, logging each notification.
func (a *App) renderEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			a.Log.Info().Str("game", ev.GameID).Msg(ev.Message)
		}
	}
}

// pollProcesses drives while_running games: their watch starts when the
// game's process shows up and stops when it exits.
func (a *App) pollProcesses(ctx context.Context) error {
	polled := false
	for _, game := range a.Cfg.Games {
		if game.IsEnabled() && game.Mode() == config.WatchWhileRunning {
			polled = true
			break
		}
	}
	if !polled {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(a.Cfg.Watch.ProcessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.syncProcessWatches(detect.RunningProcesses(ctx))
		}
	}
}

func (a *App) syncProcessWatches(running map[string]bool) {
	for _, gameID := range a.sortedGameIDs() {
		game := a.Cfg.Games[gameID]
		if !game.IsEnabled() || game.Mode() != config.WatchWhileRunning {
			continue
		}
		def, ok := a.Registry.Get(gameID)
		if !ok || def.Process == "" {
			continue
		}
		isRunning := detect.IsRunning(running, def.Process)
		switch {
		case isRunning && !a.Watcher.IsWatching(gameID):
			backupDir := game.EffectiveBackupDir(a.Cfg.ResolveBackupRoot(), gameID)
			a.Watcher.StartWatching(gameID, game.SavePath, backupDir)
		case !isRunning && a.Watcher.IsWatching(gameID):
			a.Watcher.StopWatching(gameID)
		}
	}
}

// Detect scans Steam libraries and known save locations for games from the
// registry that are not yet configured, adds the ones it finds, and saves
// the configuration. Returns the ids added.
func (a *App) Detect() ([]string, error) {
	libraries := detect.FindSteamLibraries(a.Log)

	var added []string
	for _, def := range a.Registry.All() {
		if _, exists := a.Cfg.Games[def.ID]; exists {
			continue
		}
		installDir := ""
		if def.SteamID != 0 {
			installDir = detect.FindGameInstall(def.SteamID, libraries)
		}
		paths := def.ResolveSavePaths(installDir)
		if len(paths) == 0 {
			continue
		}
		if a.Cfg.Games == nil {
			a.Cfg.Games = map[string]config.GameConfig{}
		}
		a.Cfg.Games[def.ID] = config.GameConfig{SavePath: paths[0]}
		a.Log.Info().Str("game", def.ID).Str("path", paths[0]).Msg("detected game saves")
		added = append(added, def.ID)
	}

	if len(added) > 0 {
		path := a.ConfigPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.Save(a.Cfg, path); err != nil {
			return added, err
		}
	}
	return added, nil
}

// GameStatus summarizes one game's backups.
type GameStatus struct {
	GameID    string
	Watching  bool
	Snapshots int
	Latest    string
	SizeBytes int64
}

// Status reports per-game backup state plus the total size across all
// configured games.
func (a *App) Status() ([]GameStatus, int64) {
	var statuses []GameStatus
	var total int64
	root := a.Cfg.ResolveBackupRoot()
	for _, gameID := range a.sortedGameIDs() {
		game := a.Cfg.Games[gameID]
		backupDir := game.EffectiveBackupDir(root, gameID)

		snapshots, err := backup.ListSnapshots(backupDir)
		if err != nil {
			a.Log.Warn().Err(err).Str("game", gameID).Msg("listing failed")
		}
		size := backup.TotalSize(backupDir)
		total += size

		status := GameStatus{
			GameID:    gameID,
			Watching:  a.Watcher.IsWatching(gameID),
			Snapshots: len(snapshots),
			SizeBytes: size,
		}
		if len(snapshots) > 0 {
			status.Latest = snapshots[len(snapshots)-1].Name
		}
		statuses = append(statuses, status)
	}
	return statuses, total
}

func (a *App) sortedGameIDs() []string {
	ids := make([]string, 0, len(a.Cfg.Games))
	for id := range a.Cfg.Games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
