package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func nextEventFor(t *testing.T, sub Subscription, want string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if ev.Path == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for %s", want)
		}
	}
}

func TestFSNotifierFileEvents(t *testing.T) {
	root := t.TempDir()
	sub, err := FSNotifier{}.Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Close()

	target := filepath.Join(root, "autosave.sav")
	if err := os.WriteFile(target, []byte("checkpoint"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	nextEventFor(t, sub, target, 5*time.Second)
}

func TestFSNotifierNewSubdirectory(t *testing.T) {
	root := t.TempDir()
	sub, err := FSNotifier{}.Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Close()

	deep := filepath.Join(root, "slots", "slot0001")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := filepath.Join(deep, "quicksave.sav")
	if err := os.WriteFile(target, []byte("deep save"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	nextEventFor(t, sub, target, 5*time.Second)
}

func TestFSNotifierMissingRoot(t *testing.T) {
	if _, err := (FSNotifier{}).Watch(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestFSNotifierCloseEndsStream(t *testing.T) {
	sub, err := FSNotifier{}.Watch(t.TempDir())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("got event after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
}
