package main

import (
	"io"
	"log/slog"

	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/spf13/cobra"
)

func addSyncFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringP("direction", "d", "", "upload, download or both")
	flags.StringP("conflict", "r", "", "conflict resolution (ask, skip, local_wins, remote_wins, backup_and_merge)")
	flags.StringSliceP("exclude", "e", nil, "exclude glob, may be repeated")
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the local directory with the remote project",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Sync(cmd.Context(), func(p sync.Progress) {
				if p.Err != nil {
					slog.Debug("sync progress", "done", p.Done, "total", p.Total, "op", p.Op.Kind(), "path", p.Op.Path(), "error", p.Err)
					return
				}
				slog.Debug("sync progress", "done", p.Done, "total", p.Total, "op", p.Op.Kind(), "path", p.Op.Path())
			})
			if err != nil {
				return err
			}

			if err := writeOutput(cmd, res.Report(), func(w io.Writer) { renderSyncResult(w, res) }); err != nil {
				return err
			}
			if !res.Success {
				return errNotSuccessful
			}
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().BoolP("dry-run", "n", false, "plan only, change nothing")
	cmd.Flags().BoolP("force", "f", false, "sync even when validation fails")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the pre-flight checks without syncing",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Validate(cmd.Context())
			if err != nil {
				return err
			}

			if err := writeOutput(cmd, res, func(w io.Writer) { renderValidation(w, res) }); err != nil {
				return err
			}
			if !res.CanProceed {
				return errNotSuccessful
			}
			return nil
		},
	}

	addSyncFlags(cmd)
	return cmd
}
