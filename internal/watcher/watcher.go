// Package watcher runs one filesystem watch per game and mirrors changed
// save files into that game's backup directory.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout bounds how long StopWatching waits for a watch worker
// to drain after its subscription is closed.
const DefaultStopTimeout = 5 * time.Second

// Op is the change kind surfaced to watch workers. Deletions are
// intentionally never surfaced: removing a save must not remove its backup.
type Op int

const (
	OpCreate Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpCreate {
		return "create"
	}
	return "write"
}

// Event is one file change under a watched save directory.
type Event struct {
	Path string
	Op   Op
}

// Notifier hands out change subscriptions on directory trees. The watch is
// recursive: directories created under root are picked up as they appear.
type Notifier interface {
	Watch(root string) (Subscription, error)
}

// Subscription is a live recursive watch. Events delivers file changes
// until Close; Close also ends the Errors stream.
type Subscription interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// FileBackup is the part of the backup engine the watcher drives.
type FileBackup interface {
	BackupFile(srcPath, backupDir, saveRoot string) (string, error)
}

type watch struct {
	sub  Subscription
	done chan struct{} // closed when the worker goroutine exits
}

// Supervisor owns the per-game watches behind a single mutex. Stop waits
// happen with the mutex held, so stopping a slow watch delays other calls.
type Supervisor struct {
	mu      sync.Mutex
	watches map[string]*watch

	backup      FileBackup
	notifier    Notifier
	onEvent     func(gameID, message string)
	stopTimeout time.Duration
	log         zerolog.Logger
}

// New builds a Supervisor. A nil notifier selects the fsnotify
// implementation; stopTimeout <= 0 selects DefaultStopTimeout. onEvent runs
// on supervisor goroutines, sometimes with internal state held; it must not
// call back into the Supervisor and should return quickly.
func New(backup FileBackup, notifier Notifier, onEvent func(gameID, message string), stopTimeout time.Duration, log zerolog.Logger) *Supervisor {
	if notifier == nil {
		notifier = FSNotifier{}
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		watches:     map[string]*watch{},
		backup:      backup,
		notifier:    notifier,
		onEvent:     onEvent,
		stopTimeout: stopTimeout,
		log:         log,
	}
}

// StartWatching begins watching a game's save directory, backing changed
// files into backupDir. It reports false when the game is already watched,
// the directory is missing, or the watch cannot be established.
func (s *Supervisor) StartWatching(gameID, saveDir, backupDir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[gameID]; exists {
		s.log.Debug().Str("game", gameID).Msg("already watching")
		return false
	}
	if info, err := os.Stat(saveDir); err != nil || !info.IsDir() {
		s.log.Warn().Str("game", gameID).Str("path", saveDir).Msg("cannot watch: save path does not exist")
		return false
	}

	sub, err := s.notifier.Watch(saveDir)
	if err != nil {
		s.log.Error().Err(err).Str("game", gameID).Msg("failed to start watcher")
		return false
	}

	w := &watch{sub: sub, done: make(chan struct{})}
	s.watches[gameID] = w
	go s.run(gameID, w, saveDir, backupDir)

	s.log.Info().Str("game", gameID).Str("path", saveDir).Msg("started watching")
	s.emit(gameID, "Watcher started")
	return true
}

// StopWatching closes a game's watch and waits for its worker to finish,
// up to the stop timeout. It reports false when the game was not watched.
func (s *Supervisor) StopWatching(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(gameID)
}

// StopAll stops every active watch, best effort.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for gameID := range s.watches {
		_ = s.stopLocked(gameID)
	}
}

func (s *Supervisor) stopLocked(gameID string) bool {
	w, ok := s.watches[gameID]
	if !ok {
		return false
	}
	if err := w.sub.Close(); err != nil {
		s.log.Warn().Err(err).Str("game", gameID).Msg("error closing watch")
	}
	select {
	case <-w.done:
	case <-time.After(s.stopTimeout):
		s.log.Warn().Str("game", gameID).Msg("watch worker did not stop in time")
	}
	delete(s.watches, gameID)

	s.log.Info().Str("game", gameID).Msg("stopped watching")
	s.emit(gameID, "Watcher stopped")
	return true
}

// IsWatching reports whether a game currently has an active watch.
func (s *Supervisor) IsWatching(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[gameID]
	return ok
}

// ActiveCount returns the number of active watches.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// ActiveIDs returns the watched game ids, sorted.
func (s *Supervisor) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.watches))
	for gameID := range s.watches {
		ids = append(ids, gameID)
	}
	sort.Strings(ids)
	return ids
}

// run consumes a watch's events until its subscription closes, backing up
// each changed file. Per-file failures are logged and the watch keeps going.
func (s *Supervisor) run(gameID string, w *watch, saveDir, backupDir string) {
	defer close(w.done)

	events := w.sub.Events()
	errs := w.sub.Errors()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.backup.BackupFile(ev.Path, backupDir, saveDir); err != nil {
				s.log.Warn().Err(err).Str("game", gameID).Str("file", ev.Path).Msg("backup failed")
				continue
			}
			s.emit(gameID, "Backed up: "+filepath.Base(ev.Path))
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Warn().Err(err).Str("game", gameID).Msg("watch error")
		}
	}
}

func (s *Supervisor) emit(gameID, message string) {
	if s.onEvent != nil {
		s.onEvent(gameID, message)
	}
}
