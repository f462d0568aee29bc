package detect

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const sampleLibraryFolders = `"libraryfolders"
{
	"0"
	{
		"path"		"C:\\Program Files (x86)\\Steam"
		"label"		""
		"contentid"		"8428924400793895478"
	}
	"1"
	{
		"path"		"D:\\SteamLibrary"
		"label"		""
	}
}
`

const sampleAppManifest = `"AppState"
{
	"appid"		"264710"
	"name"		"Subnautica"
	"StateFlags"		"4"
	"installdir"		"Subnautica"
	"LastUpdated"		"1705312345"
}
`

func TestParseLibraryFolders(t *testing.T) {
	libraries := ParseLibraryFolders(sampleLibraryFolders)
	if len(libraries) != 2 {
		t.Fatalf("got %d libraries, want 2", len(libraries))
	}
	if libraries[0] != `C:\Program Files (x86)\Steam` {
		t.Fatalf("first library = %q", libraries[0])
	}
	if libraries[1] != `D:\SteamLibrary` {
		t.Fatalf("second library = %q", libraries[1])
	}
}

func TestParseLibraryFoldersEmpty(t *testing.T) {
	if got := ParseLibraryFolders(`"libraryfolders" {}`); len(got) != 0 {
		t.Fatalf("got %v from empty vdf", got)
	}
}

func TestParseInstallDir(t *testing.T) {
	if got := ParseInstallDir(sampleAppManifest); got != "Subnautica" {
		t.Fatalf("ParseInstallDir = %q", got)
	}
	if got := ParseInstallDir(`"AppState" {}`); got != "" {
		t.Fatalf("ParseInstallDir on empty manifest = %q", got)
	}
}

func TestFindGameInstall(t *testing.T) {
	library := filepath.Join(t.TempDir(), "steamapps")
	installDir := filepath.Join(library, "common", "Subnautica")
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := filepath.Join(library, "appmanifest_264710.acf")
	if err := os.WriteFile(manifest, []byte(sampleAppManifest), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := FindGameInstall(264710, []string{library}); got != installDir {
		t.Fatalf("FindGameInstall = %q, want %q", got, installDir)
	}
	if got := FindGameInstall(413150, []string{library}); got != "" {
		t.Fatalf("found install for absent game: %q", got)
	}
}

func TestFindGameInstallMissingCommonDir(t *testing.T) {
	library := filepath.Join(t.TempDir(), "steamapps")
	if err := os.MkdirAll(library, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Manifest exists but the install directory does not.
	if err := os.WriteFile(filepath.Join(library, "appmanifest_264710.acf"), []byte(sampleAppManifest), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := FindGameInstall(264710, []string{library}); got != "" {
		t.Fatalf("FindGameInstall = %q, want empty", got)
	}
}

func TestIsRunning(t *testing.T) {
	processes := map[string]bool{"valheim": true, "subnautica.exe": true}
	if !IsRunning(processes, "Subnautica.exe") {
		t.Fatal("exact match failed")
	}
	if !IsRunning(processes, "Valheim.exe") {
		t.Fatal("suffix-trimmed match failed")
	}
	if IsRunning(processes, "eldenring.exe") {
		t.Fatal("matched a process that is not running")
	}
}

func TestRunningProcessesFindsSelf(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("process listing fixture is unix-only")
	}
	processes := RunningProcesses(context.Background())
	if len(processes) == 0 {
		t.Fatal("no processes reported")
	}
	// The test binary itself must show up.
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	if !IsRunning(processes, filepath.Base(self)) {
		t.Fatalf("test binary %s not in process list", filepath.Base(self))
	}
}
