package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifier implements Notifier on top of fsnotify. fsnotify watches are
// per-directory, so the subscription walks the tree at start and adopts
// directories created later.
type FSNotifier struct{}

func (FSNotifier) Watch(root string) (Subscription, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	sub := &fsSubscription{
		watcher: fsw,
		events:  make(chan Event),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	if err := sub.addTree(root, false); err != nil {
		fsw.Close()
		return nil, err
	}
	go sub.pump()
	return sub, nil
}

type fsSubscription struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func (s *fsSubscription) Events() <-chan Event { return s.events }
func (s *fsSubscription) Errors() <-chan error { return s.errs }

func (s *fsSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.watcher.Close()
}

// addTree registers watches for every directory under root. With announce
// set, regular files found during the walk are surfaced as create events;
// that covers files written into a fresh directory before its watch took
// effect. Unreadable subdirectories are skipped, but a missing root fails.
func (s *fsSubscription) addTree(root string, announce bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if d.IsDir() {
			if err := s.watcher.Add(path); err != nil {
				if path == root {
					return fmt.Errorf("watch %s: %w", path, err)
				}
				return nil
			}
			return nil
		}
		if announce && d.Type().IsRegular() {
			select {
			case s.events <- Event{Path: path, Op: OpCreate}:
			case <-s.done:
				return filepath.SkipAll
			}
		}
		return nil
	})
}

// pump translates raw fsnotify traffic into file-level Events. The events
// channel is unbuffered: a slow consumer pushes backpressure into the OS
// watch queue instead of growing memory here.
func (s *fsSubscription) pump() {
	defer close(s.events)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *fsSubscription) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		// Gone before we could look at it.
		return
	}
	if info.IsDir() {
		if ev.Op.Has(fsnotify.Create) {
			_ = s.addTree(ev.Name, true)
		}
		return
	}
	op := OpWrite
	if ev.Op.Has(fsnotify.Create) {
		op = OpCreate
	}
	select {
	case s.events <- Event{Path: ev.Name, Op: op}:
	case <-s.done:
	}
}
