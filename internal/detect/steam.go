// Package detect locates installed games and their save directories, and
// probes running processes for process-aware watching.
package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Valve's VDF/ACF files are key-value text. Regex extraction covers the two
// fields we need without a format parser.
var (
	libraryPathRe = regexp.MustCompile(`"path"\s+"([^"]+)"`)
	installDirRe  = regexp.MustCompile(`"installdir"\s+"([^"]+)"`)
)

// FindSteamLibraries returns the steamapps directories of every Steam
// library on this machine, or nil when Steam is not installed.
func FindSteamLibraries(log zerolog.Logger) []string {
	roots := steamInstallCandidates()
	if len(roots) == 0 {
		log.Info().Msg("steam installation not found")
		return nil
	}

	var libraries []string
	for _, root := range roots {
		data, err := os.ReadFile(filepath.Join(root, "steamapps", "libraryfolders.vdf"))
		if err != nil {
			continue
		}
		for _, lib := range ParseLibraryFolders(string(data)) {
			steamapps := filepath.Join(lib, "steamapps")
			if _, err := os.Stat(steamapps); err == nil {
				libraries = append(libraries, steamapps)
			}
		}
		break
	}

	if len(libraries) == 0 {
		// The install itself is always a library.
		steamapps := filepath.Join(roots[0], "steamapps")
		if _, err := os.Stat(steamapps); err == nil {
			libraries = append(libraries, steamapps)
		}
	}

	log.Info().Int("libraries", len(libraries)).Msg("found steam libraries")
	return libraries
}

// ParseLibraryFolders extracts the library root paths from a
// libraryfolders.vdf payload.
func ParseLibraryFolders(content string) []string {
	var libraries []string
	for _, match := range libraryPathRe.FindAllStringSubmatch(content, -1) {
		libraries = append(libraries, strings.ReplaceAll(match[1], `\\`, `\`))
	}
	return libraries
}

// ParseInstallDir extracts the installdir value from an appmanifest .acf
// payload, or "" when absent.
func ParseInstallDir(content string) string {
	match := installDirRe.FindStringSubmatch(content)
	if match == nil {
		return ""
	}
	return match[1]
}

// FindGameInstall resolves a game's install directory from its Steam app
// id, or "" when not installed in any library.
func FindGameInstall(steamID int, libraries []string) string {
	for _, library := range libraries {
		data, err := os.ReadFile(filepath.Join(library, fmt.Sprintf("appmanifest_%d.acf", steamID)))
		if err != nil {
			continue
		}
		installDir := ParseInstallDir(string(data))
		if installDir == "" {
			continue
		}
		full := filepath.Join(library, "common", installDir)
		if _, err := os.Stat(full); err == nil {
			return full
		}
	}
	return ""
}

func steamInstallCandidates() []string {
	home, _ := os.UserHomeDir()
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{
			filepath.Join(envOr("PROGRAMFILES(X86)", `C:\Program Files (x86)`), "Steam"),
			filepath.Join(envOr("PROGRAMFILES", `C:\Program Files`), "Steam"),
			filepath.Join(home, "Steam"),
		}
	case "darwin":
		candidates = []string{
			filepath.Join(home, "Library", "Application Support", "Steam"),
		}
	default:
		candidates = []string{
			filepath.Join(home, ".local", "share", "Steam"),
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", ".local", "share", "Steam"),
		}
	}

	var found []string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			found = append(found, c)
		}
	}
	return found
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
