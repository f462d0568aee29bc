// Package backup creates, lists, and rotates save snapshots.
//
// Backup layout for one game:
//
//	{backup_root}/{game_id}/
//	    slot0000_20240115_103000/        timestamped snapshot (directory form)
//	    slot0000_20240115_120000.zip     timestamped snapshot (archive form)
//	    latest/                          rolling copy maintained by the watcher
//	    _safety_backups/                 pre-restore copies, never rotated
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/savewarden/savewarden/internal/archive"
	"github.com/savewarden/savewarden/internal/fsutil"
)

const (
	// LatestDirName is the rolling incremental session directory. It is not
	// a snapshot and never appears in listings or rotation.
	LatestDirName = "latest"
	// SafetyDirName holds pre-restore safety copies, also outside the
	// snapshot set.
	SafetyDirName = "_safety_backups"

	timestampLayout = "20060102_150405"

	lockRetryAttempts = 5
	lockRetryDelay    = 500 * time.Millisecond
)

// Snapshot kinds as reported in listings.
const (
	KindDirectory = "directory"
	KindArchive   = "archive"
)

// Snapshot is one entry in a game's backup directory.
type Snapshot struct {
	Name string
	Path string
	Kind string
}

// Engine creates snapshots and incremental file backups. The archive format
// applies to compressed snapshots; a non-nil key additionally encrypts them.
type Engine struct {
	log    zerolog.Logger
	format string
	key    []byte
}

func NewEngine(log zerolog.Logger, format string, key []byte) *Engine {
	if format == "" {
		format = archive.FormatZip
	}
	return &Engine{log: log, format: format, key: key}
}

// CreateSnapshot copies sourceDir into backupDir as a new timestamped
// snapshot and returns its path. With compress set the snapshot is a single
// archive, otherwise a directory copy. A snapshot created within the same
// second as an existing one silently replaces it.
func (e *Engine) CreateSnapshot(sourceDir, backupDir string, compress bool) (string, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source is not a directory: %s", sourceDir)
	}
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := filepath.Base(sourceDir) + "_" + time.Now().Format(timestampLayout)
	if compress {
		name += archive.Suffix(e.format, e.key != nil)
		path := filepath.Join(backupDir, name)
		if err := archive.Create(e.format, path, sourceDir, e.key); err != nil {
			e.log.Error().Err(err).Str("source", sourceDir).Msg("failed to create compressed snapshot")
			return "", fmt.Errorf("create snapshot: %w", err)
		}
		e.log.Info().Str("snapshot", path).Msg("created compressed snapshot")
		return path, nil
	}

	path := filepath.Join(backupDir, name)
	if err := fsutil.CopyTree(sourceDir, path); err != nil {
		e.log.Error().Err(err).Str("source", sourceDir).Msg("failed to create snapshot")
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	e.log.Info().Str("snapshot", path).Msg("created snapshot")
	return path, nil
}

// BackupFile copies one changed file into backupDir's latest/ session,
// preserving its path relative to saveRoot. Files a game still holds locked
// are retried a few times with a fixed delay; any other failure aborts
// immediately.
func (e *Engine) BackupFile(srcPath, backupDir, saveRoot string) (string, error) {
	rel, err := filepath.Rel(saveRoot, srcPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %s is outside save root %s", srcPath, saveRoot)
	}
	dest := filepath.Join(backupDir, LatestDirName, rel)

	var lastErr error
	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		err := fsutil.CopyFile(srcPath, dest)
		if err == nil {
			e.log.Info().Str("file", srcPath).Str("dest", dest).Msg("backed up file")
			return dest, nil
		}
		if !fsutil.IsLocked(err) {
			return "", fmt.Errorf("backup file: %w", err)
		}
		lastErr = err
		e.log.Debug().Str("file", srcPath).Int("attempt", attempt).Msg("file locked, retrying")
		if attempt < lockRetryAttempts {
			time.Sleep(lockRetryDelay)
		}
	}
	e.log.Error().Str("file", srcPath).Int("attempts", lockRetryAttempts).Msg("file stayed locked")
	return "", fmt.Errorf("file locked after %d attempts: %w", lockRetryAttempts, lastErr)
}

// RotateBackups prunes the oldest snapshots so at most maxCount remain,
// returning how many were deleted. maxCount <= 0 disables rotation. Exactly
// the excess oldest entries are attempted; ones that fail to delete are
// logged and skipped, never substituted with newer snapshots.
func (e *Engine) RotateBackups(backupDir string, maxCount int) int {
	if maxCount <= 0 {
		return 0
	}
	snapshots, err := ListSnapshots(backupDir)
	if err != nil {
		e.log.Warn().Err(err).Str("dir", backupDir).Msg("rotation listing failed")
		return 0
	}
	if len(snapshots) <= maxCount {
		return 0
	}

	deleted := 0
	for _, snap := range snapshots[:len(snapshots)-maxCount] {
		if err := os.RemoveAll(snap.Path); err != nil {
			e.log.Error().Err(err).Str("snapshot", snap.Name).Msg("failed to prune snapshot")
			continue
		}
		e.log.Info().Str("snapshot", snap.Name).Msg("pruned old snapshot")
		deleted++
	}
	return deleted
}

// ListSnapshots returns the snapshots in backupDir sorted oldest first.
// Directories count as snapshots, as do files with a recognized archive
// suffix; the latest/ session and safety copies are excluded. A missing
// backupDir yields an empty listing.
func ListSnapshots(backupDir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	// ReadDir sorts by name; the fixed-width timestamp makes that oldest
	// first.
	var snapshots []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if name == LatestDirName || name == SafetyDirName {
			continue
		}
		switch {
		case entry.IsDir():
			snapshots = append(snapshots, Snapshot{Name: name, Path: filepath.Join(backupDir, name), Kind: KindDirectory})
		default:
			if _, ok := archive.Recognize(name); ok {
				snapshots = append(snapshots, Snapshot{Name: name, Path: filepath.Join(backupDir, name), Kind: KindArchive})
			}
		}
	}
	return snapshots, nil
}

// TotalSize sums the sizes of all files under dir. Entries that vanish
// mid-walk are skipped; a missing dir reports zero.
func TotalSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// FormatSize renders a byte count with two decimals in the largest unit
// under 1024, e.g. "1.50 KB".
func FormatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f PB", value)
}
