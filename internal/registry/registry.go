// Package registry holds game definitions: where each game keeps its saves,
// what process it runs as, and how to identify it in a Steam library. A
// built-in manifest ships embedded; users can merge their own on top.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed manifest.json
var builtinManifest []byte

// Game is one game's save profile.
type Game struct {
	ID          string   `json:"-"`
	Name        string   `json:"name"`
	Process     string   `json:"process,omitempty"`
	SavePaths   []string `json:"save_paths"`
	SavePattern string   `json:"save_pattern,omitempty"`
	SteamID     int      `json:"steam_id,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Pattern returns the glob that picks save slots inside a save directory.
func (g Game) Pattern() string {
	if g.SavePattern == "" {
		return "*"
	}
	return g.SavePattern
}

// ResolveSavePaths expands the game's save path templates and returns the
// ones that exist on this machine.
func (g Game) ResolveSavePaths(installDir string) []string {
	var found []string
	vars := Placeholders()
	for _, template := range g.SavePaths {
		path, ok := ExpandTemplate(template, installDir, vars)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	return found
}

// Registry maps game ids to definitions.
type Registry struct {
	games map[string]Game
	log   zerolog.Logger
}

// Load builds a registry from the embedded manifest.
func Load(log zerolog.Logger) *Registry {
	r := &Registry{games: map[string]Game{}, log: log}
	if err := r.merge(builtinManifest); err != nil {
		// The embedded manifest is fixed at build time; failing to parse
		// it is a packaging defect, not a runtime condition.
		log.Error().Err(err).Msg("built-in manifest is invalid")
	}
	log.Info().Int("games", len(r.games)).Msg("loaded game definitions")
	return r
}

// LoadCustom merges game definitions from a user manifest file. Entries
// with ids already present replace the built-in ones.
func (r *Registry) LoadCustom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := r.merge(data); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return nil
}

func (r *Registry) merge(data []byte) error {
	var entries map[string]Game
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for id, game := range entries {
		game.ID = id
		r.games[id] = game
	}
	return nil
}

// Add registers a user-defined game at runtime.
func (r *Registry) Add(game Game) {
	r.games[game.ID] = game
	r.log.Info().Str("game", game.ID).Msg("added custom game")
}

// Get looks a game up by id.
func (r *Registry) Get(id string) (Game, bool) {
	game, ok := r.games[id]
	return game, ok
}

// All returns every definition, sorted by id.
func (r *Registry) All() []Game {
	games := make([]Game, 0, len(r.games))
	for _, game := range r.games {
		games = append(games, game)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

// FindBySteamID looks a game up by its Steam app id.
func (r *Registry) FindBySteamID(steamID int) (Game, bool) {
	for _, game := range r.games {
		if game.SteamID != 0 && game.SteamID == steamID {
			return game, true
		}
	}
	return Game{}, false
}

// FindByProcess looks a game up by process name, case-insensitively.
func (r *Registry) FindByProcess(process string) (Game, bool) {
	for _, game := range r.games {
		if game.Process != "" && strings.EqualFold(game.Process, process) {
			return game, true
		}
	}
	return Game{}, false
}

// Placeholders returns the template variables save paths may reference.
// The Windows-specific ones resolve to empty or nonexistent paths
// elsewhere and drop out during probing.
func Placeholders() map[string]string {
	home, _ := os.UserHomeDir()
	return map[string]string{
		"{home}":             home,
		"{appdata}":          os.Getenv("APPDATA"),
		"{localappdata}":     os.Getenv("LOCALAPPDATA"),
		"{localappdata_low}": filepath.Join(home, "AppData", "LocalLow"),
		"{documents}":        filepath.Join(home, "Documents"),
		"{public}":           envOr("PUBLIC", `C:\Users\Public`),
		"{programdata}":      envOr("PROGRAMDATA", `C:\ProgramData`),
	}
}

// ExpandTemplate substitutes placeholder variables into a save path
// template. It reports false when the template needs {install_dir} and none
// was supplied.
func ExpandTemplate(template, installDir string, vars map[string]string) (string, bool) {
	path := template
	if strings.Contains(path, "{install_dir}") {
		if installDir == "" {
			return "", false
		}
		path = strings.ReplaceAll(path, "{install_dir}", installDir)
	}
	for placeholder, value := range vars {
		path = strings.ReplaceAll(path, placeholder, value)
	}
	return filepath.FromSlash(path), true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
