package main

import (
	"fmt"
	"io"

	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/spf13/cobra"
)

func newBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Manage the backups taken before overwrites and deletions",
	}

	cmd.AddCommand(newBackupsListCmd())
	cmd.AddCommand(newBackupsRestoreCmd())
	cmd.AddCommand(newBackupsCleanupCmd())
	return cmd
}

func newBackupsListCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if path != "" {
				path = utils.NormRelPath(path)
			}
			backups, err := c.ListBackups(path)
			if err != nil {
				return err
			}
			if backups == nil {
				backups = []*state.BackupEntry{}
			}
			return writeOutput(cmd, backups, func(w io.Writer) { renderBackups(w, backups) })
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "only backups of this relative path")
	return cmd
}

func newBackupsRestoreCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a backup over its original file or to another path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if target != "" {
				if target, err = utils.ResolvePath(target); err != nil {
					return err
				}
			}

			restored, err := c.RestoreBackup(args[0], target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored '%s' to '%s'\n", cyan.Bold(true).Render(args[0]), green.Bold(true).Render(restored))
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "write the backup here instead of its original path")
	return cmd
}

func newBackupsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			removed, err := c.CleanupBackups()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backups (keeping %d per file)\n", removed, cfg.Backup.RetentionCount)
			return nil
		},
	}
}
