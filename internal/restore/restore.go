// Package restore puts a snapshot back into a game's live save directory.
package restore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/savewarden/savewarden/internal/archive"
	"github.com/savewarden/savewarden/internal/backup"
	"github.com/savewarden/savewarden/internal/fsutil"
)

// Engine restores snapshots. The backup engine is used for pre-restore
// safety copies; key decrypts encrypted archive snapshots.
type Engine struct {
	backup *backup.Engine
	key    []byte
	log    zerolog.Logger
}

func NewEngine(backupEngine *backup.Engine, key []byte, log zerolog.Logger) *Engine {
	return &Engine{backup: backupEngine, key: key, log: log}
}

// RestoreSnapshot replaces the matching save slot under saveDir with the
// contents of the snapshot at snapshotPath. The slot is parsed from the
// snapshot name; names that are all timestamp restore into saveDir itself.
// When the destination exists and safetyBackupDir is set, an uncompressed
// safety copy is taken first; if that copy fails the restore still proceeds.
// The replace is destructive: the existing destination is deleted.
func (e *Engine) RestoreSnapshot(snapshotPath, saveDir, safetyBackupDir string) error {
	info, err := os.Stat(snapshotPath)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	slot := SlotName(filepath.Base(snapshotPath))
	destination := filepath.Join(saveDir, slot)

	if _, err := os.Stat(destination); err == nil {
		if safetyBackupDir != "" {
			if safety, err := e.backup.CreateSnapshot(destination, safetyBackupDir, false); err != nil {
				e.log.Warn().Err(err).Str("destination", destination).Msg("failed to create safety backup, proceeding anyway")
			} else {
				e.log.Info().Str("safety", safety).Msg("safety backup created")
			}
		}
		if err := os.RemoveAll(destination); err != nil {
			return fmt.Errorf("remove current save: %w", err)
		}
	}

	if info.IsDir() {
		if err := fsutil.CopyTree(snapshotPath, destination); err != nil {
			e.log.Error().Err(err).Str("snapshot", snapshotPath).Msg("restore failed")
			return fmt.Errorf("restore snapshot: %w", err)
		}
	} else {
		if err := os.MkdirAll(destination, 0o750); err != nil {
			return fmt.Errorf("create destination: %w", err)
		}
		if err := archive.Extract(snapshotPath, destination, e.key); err != nil {
			e.log.Error().Err(err).Str("snapshot", snapshotPath).Msg("restore failed")
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}

	e.log.Info().Str("snapshot", filepath.Base(snapshotPath)).Str("destination", destination).Msg("restored snapshot")
	return nil
}

// SlotName derives the original save folder name from a snapshot name,
// e.g. "slot0000_20240115_103000.zip" -> "slot0000". The timestamp starts
// at the first underscore-separated run of exactly eight digits; a name
// that begins with the timestamp yields the empty string.
func SlotName(name string) string {
	base := archive.TrimName(name)
	parts := strings.Split(base, "_")
	for i, part := range parts {
		if len(part) == 8 && allDigits(part) {
			return strings.Join(parts[:i], "_")
		}
	}
	return base
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Info describes one snapshot in a listing.
type Info struct {
	Name     string
	Path     string
	Modified time.Time
	Size     int64
	Kind     string
}

// ListDetailed returns backupDir's snapshots with size and modification
// metadata, oldest first. Snapshots removed while listing are skipped.
func ListDetailed(backupDir string) ([]Info, error) {
	snapshots, err := backup.ListSnapshots(backupDir)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(snapshots))
	for _, snap := range snapshots {
		stat, err := os.Stat(snap.Path)
		if err != nil {
			continue
		}
		size := stat.Size()
		if stat.IsDir() {
			size = backup.TotalSize(snap.Path)
		}
		infos = append(infos, Info{
			Name:     snap.Name,
			Path:     snap.Path,
			Modified: stat.ModTime(),
			Size:     size,
			Kind:     snap.Kind,
		})
	}
	return infos, nil
}
