package main

import (
	"fmt"
	"io"

	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/kbsdk"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var withPaths bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded sync state of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(cmd.Context(), withPaths)
			if err != nil {
				return err
			}
			return writeOutput(cmd, st, func(w io.Writer) { renderStatus(w, st) })
		},
	}

	cmd.Flags().BoolVar(&withPaths, "paths", false, "list every tracked path")
	return cmd
}

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the remote projects visible to the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			// a project id and local directory are not needed here, so skip full validation
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			remote := remoteOverride
			if remote == nil {
				sdk, err := kbsdk.New(&kbsdk.Config{BaseURL: cfg.ServerURL, Token: cfg.Token})
				if err != nil {
					return fmt.Errorf("failed to create sdk: %w", err)
				}
				remote = sdk
			}

			projects, err := remote.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if projects == nil {
				projects = []*kb.Project{}
			}
			return writeOutput(cmd, projects, func(w io.Writer) { renderProjects(w, projects) })
		},
	}
}
