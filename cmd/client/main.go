package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/eric-downes/claude-sync/internal/client"
	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/eric-downes/claude-sync/internal/version"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CLAUDE_SYNC"

var (
	home, _  = os.UserHomeDir()
	logLevel = new(slog.LevelVar)

	// remoteOverride replaces the HTTP knowledge base client when set
	remoteOverride kb.Client
)

// config keys and the flags that override them
var flagBindings = map[string]string{
	"project_id":          "project",
	"local_dir":           "local-dir",
	"server_url":          "server",
	"token":               "token",
	"state_dir":           "state-dir",
	"backup_dir":          "backup-dir",
	"state.backend":       "state-backend",
	"verbose":             "verbose",
	"direction":           "direction",
	"dry_run":             "dry-run",
	"force":               "force",
	"conflict_resolution": "conflict",
	"exclude_patterns":    "exclude",
}

var rootCmd = &cobra.Command{
	Use:           "claude-sync",
	Short:         "Mirror a local directory with a remote knowledge base, safely",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newBackupsCmd())
	rootCmd.AddCommand(newInitCmd())
}

func addPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "config file")
	flags.StringP("project", "p", "", "remote project id")
	flags.StringP("local-dir", "l", "", "local directory to sync")
	flags.StringP("server", "s", "", "knowledge base server url")
	flags.String("token", "", "api token")
	flags.String("state-dir", "", "sync state directory")
	flags.String("backup-dir", "", "backup directory")
	flags.String("state-backend", "", "state backend (json or sqlite)")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.StringP("output", "o", formatText, "output format (text, json or yaml)")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	// TODO unique log file per project so concurrent runs on different projects don't truncate each other
	logFile := config.DefaultLogFilePath

	// Create log directory
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	// console logs go to stderr so json and yaml output stay clean on stdout
	logLevel.Set(slog.LevelInfo)
	consoleHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	defer logInterceptor.Close()
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotSuccessful) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		}
		stop()
		file.Close()
		os.Exit(1)
	}
}

// loadConfig layers flags over environment over the config file over defaults.
// The result is not validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := resolveConfigPath(cmd)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v, config.Default())

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	for key, name := range flagBindings {
		if flag := cmd.Flag(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("project_id", d.ProjectID)
	v.SetDefault("local_dir", d.LocalDir)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("token", d.Token)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("backup_dir", d.BackupDir)
	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("direction", d.Direction)
	v.SetDefault("dry_run", d.DryRun)
	v.SetDefault("force", d.Force)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("conflict_resolution", d.ConflictResolution)
	v.SetDefault("exclude_patterns", []string{})
	v.SetDefault("backup.enabled", d.Backup.Enabled)
	v.SetDefault("backup.retention_count", d.Backup.RetentionCount)
	v.SetDefault("validation.enabled", d.Validation.Enabled)
	v.SetDefault("validation.check_disk_space", d.Validation.CheckDiskSpace)
	v.SetDefault("validation.check_permissions", d.Validation.CheckPermissions)
	v.SetDefault("validation.check_vcs", d.Validation.CheckVCS)
	v.SetDefault("validation.check_connectivity", d.Validation.CheckConnectivity)
	v.SetDefault("validation.min_free_bytes", d.Validation.MinFreeBytes)
	v.SetDefault("validation.max_conflict_count", d.Validation.MaxConflictCount)
}

// loadValidConfig loads and validates the config and applies the verbosity setting
func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config '%s': %w", cfg.Path, err)
	}
	if cfg.Verbose {
		logLevel.Set(slog.LevelDebug)
	}
	slog.Debug("config",
		"path", cfg.Path,
		"project", cfg.ProjectID,
		"local", cfg.LocalDir,
		"server", cfg.ServerURL,
		"token", utils.MaskSecret(cfg.Token),
		"backend", cfg.State.Backend,
	)
	return cfg, nil
}

func newClient(cmd *cobra.Command) (*client.Client, *config.Config, error) {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(cfg, remoteOverride)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
