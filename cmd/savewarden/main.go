package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/savewarden/savewarden/internal/app"
	"github.com/savewarden/savewarden/internal/backup"
	"github.com/savewarden/savewarden/internal/config"
	"github.com/savewarden/savewarden/internal/lock"
	"github.com/savewarden/savewarden/internal/logging"
	"github.com/savewarden/savewarden/internal/registry"
	"github.com/savewarden/savewarden/internal/restore"
	"github.com/savewarden/savewarden/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func main() {
	root := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "savewarden",
		Short: "Watch, back up, and restore game save directories",
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newBackupCmd(root))
	rootCmd.AddCommand(newRestoreCmd(root))
	rootCmd.AddCommand(newListCmd(root))
	rootCmd.AddCommand(newPruneCmd(root))
	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newDetectCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watch daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}
}

func newBackupCmd(root *rootFlags) *cobra.Command {
	var compress bool

	cmd := &cobra.Command{
		Use:   "backup <game-id>",
		Short: "Snapshot a game's saves now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			if compress {
				svc.Cfg.Backup.Compress = true
			}
			guard, err := lock.Acquire(svc.Cfg.Global.LockFile)
			if err != nil {
				return err
			}
			defer guard.Release()
			created, err := svc.SaveNow(args[0])
			if err != nil {
				return err
			}
			for _, path := range created {
				fmt.Println(filepath.Base(path))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress the snapshot even if config says otherwise")
	return cmd
}

func newRestoreCmd(root *rootFlags) *cobra.Command {
	var snapshot string
	var noSafety bool

	cmd := &cobra.Command{
		Use:   "restore <game-id>",
		Short: "Restore a snapshot into the game's save directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshot == "" {
				return fmt.Errorf("--snapshot is required")
			}
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			gameID := args[0]
			game, ok := svc.Cfg.Games[gameID]
			if !ok {
				return fmt.Errorf("game %s is not configured", gameID)
			}
			backupDir := game.EffectiveBackupDir(svc.Cfg.ResolveBackupRoot(), gameID)

			snapshotPath := snapshot
			if !filepath.IsAbs(snapshotPath) {
				snapshotPath = filepath.Join(backupDir, snapshot)
			}
			safetyDir := ""
			if !noSafety {
				safetyDir = filepath.Join(backupDir, backup.SafetyDirName)
			}
			guard, err := lock.Acquire(svc.Cfg.Global.LockFile)
			if err != nil {
				return err
			}
			defer guard.Release()
			if err := svc.Restore.RestoreSnapshot(snapshotPath, game.SavePath, safetyDir); err != nil {
				return err
			}
			fmt.Printf("restored %s\n", filepath.Base(snapshotPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot name (or absolute path) to restore")
	cmd.Flags().BoolVar(&noSafety, "no-safety", false, "Skip the pre-restore safety backup")
	return cmd
}

func newListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <game-id>",
		Short: "List a game's snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			gameID := args[0]
			game, ok := svc.Cfg.Games[gameID]
			if !ok {
				return fmt.Errorf("game %s is not configured", gameID)
			}
			backupDir := game.EffectiveBackupDir(svc.Cfg.ResolveBackupRoot(), gameID)

			infos, err := restore.ListDetailed(backupDir)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no snapshots")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%s\t%s\t%s\n", info.Name, info.Kind, backup.FormatSize(info.Size), humanize.Time(info.Modified))
			}
			return nil
		},
	}
}

func newPruneCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune [game-id]",
		Short: "Delete snapshots beyond each game's retention limit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			games := svc.Cfg.Games
			if len(args) == 1 {
				game, ok := games[args[0]]
				if !ok {
					return fmt.Errorf("game %s is not configured", args[0])
				}
				games = map[string]config.GameConfig{args[0]: game}
			}
			backupRoot := svc.Cfg.ResolveBackupRoot()
			total := 0
			for gameID, game := range games {
				backupDir := game.EffectiveBackupDir(backupRoot, gameID)
				deleted := svc.Backup.RotateBackups(backupDir, game.EffectiveMaxSnapshots(svc.Cfg.Backup.DefaultMaxSnapshots))
				if deleted > 0 {
					fmt.Printf("%s: pruned %d\n", gameID, deleted)
				}
				total += deleted
			}
			fmt.Printf("pruned %d snapshots\n", total)
			return nil
		},
	}
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-game backup state",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			statuses, total := svc.Status()
			if len(statuses) == 0 {
				fmt.Println("no games configured (try: savewarden detect)")
				return nil
			}
			for _, st := range statuses {
				latest := st.Latest
				if latest == "" {
					latest = "-"
				}
				fmt.Printf("%s\t%d snapshots\t%s\tlatest: %s\n", st.GameID, st.Snapshots, backup.FormatSize(st.SizeBytes), latest)
			}
			fmt.Printf("total: %s\n", backup.FormatSize(total))
			return nil
		},
	}
}

func newDetectCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Find installed games with known save locations and add them to the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildApp(root)
			if err != nil {
				return err
			}
			added, err := svc.Detect()
			for _, id := range added {
				fmt.Println("added: " + id)
			}
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Println("no new games found")
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("savewarden %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func buildApp(root *rootFlags) (*app.App, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.LogFile)

	reg := registry.Load(logger)
	if cfg.Global.ManifestPath != "" {
		if err := reg.LoadCustom(cfg.Global.ManifestPath); err != nil {
			logger.Warn().Err(err).Msg("user manifest not loaded")
		}
	}

	svc, err := app.New(cfg, reg, logger)
	if err != nil {
		return nil, err
	}
	svc.ConfigPath = root.ConfigPath
	return svc, nil
}
