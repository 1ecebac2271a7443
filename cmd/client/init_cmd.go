package main

import (
	"fmt"
	"io"

	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from the given flags and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			if existing, err := config.LoadFromFile(path); err == nil && !overwrite {
				fmt.Fprintln(cmd.OutOrStdout(), "Already initialized")
				logConfig(cmd.OutOrStdout(), existing)
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := utils.EnsureDir(cfg.LocalDir); err != nil {
				return fmt.Errorf("failed to create local dir: %w", err)
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), green.Render("Initialized"))
			logConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config file")
	return cmd
}

func logConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "%s%s\n", gray.Render("Config    "), green.Render(cfg.Path))
	fmt.Fprintf(w, "%s%s\n", gray.Render("Project   "), cyan.Render(cfg.ProjectID))
	fmt.Fprintf(w, "%s%s\n", gray.Render("Local dir "), cyan.Render(cfg.LocalDir))
	fmt.Fprintf(w, "%s%s\n", gray.Render("Server    "), cyan.Render(cfg.ServerURL))
	fmt.Fprintf(w, "%s%s\n", gray.Render("Conflicts "), cfg.ConflictResolution)
}
