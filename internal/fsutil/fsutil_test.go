package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestCopyFilePreservesContentAndModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "save.dat")
	if err := os.WriteFile(src, []byte("player state"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	when := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	if err := os.Chtimes(src, when, when); err != nil {
		t.Fatalf("chtimes source: %v", err)
	}

	dst := filepath.Join(dir, "out", "nested", "save.dat")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != "player state" {
		t.Fatalf("unexpected content: %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat copy: %v", err)
	}
	if !info.ModTime().Equal(when) {
		t.Fatalf("mod time not preserved: got %v want %v", info.ModTime(), when)
	}
}

func TestCopyFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(dst, []byte("old content that is longer"), 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("dest not truncated: %q", data)
	}
}

func TestCopyTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "slot0000")
	if err := os.MkdirAll(filepath.Join(src, "world"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"gameinfo.json":   `{"slot":0}`,
		"world/chunk.dat": "terrain",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, filepath.FromSlash(name)), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	dst := filepath.Join(dir, "copy")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != content {
			t.Fatalf("%s: unexpected content %q", name, data)
		}
	}
}

func TestCopyTreeIntoExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dst, "a.txt"), []byte("stale"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dst, "keep.txt"), []byte("only in dst"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dst, "a.txt"))
	if string(data) != "fresh" {
		t.Fatalf("a.txt not overwritten: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dst, "keep.txt")); err != nil {
		t.Fatalf("extra file removed: %v", err)
	}
}

func TestCopyTreeRejectsFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := CopyTree(src, filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for non-directory source")
	}
}

func TestIsLocked(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{os.ErrPermission, true},
		{fmt.Errorf("copy: %w", os.ErrPermission), true},
		{syscall.EBUSY, true},
		{fmt.Errorf("open: %w", syscall.EAGAIN), true},
		{syscall.ETXTBSY, true},
		{os.ErrNotExist, false},
		{fmt.Errorf("plain failure"), false},
	}
	for _, tc := range cases {
		if got := IsLocked(tc.err); got != tc.want {
			t.Fatalf("IsLocked(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
