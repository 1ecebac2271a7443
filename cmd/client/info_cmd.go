package main

import (
	"fmt"

	"github.com/eric-downes/claude-sync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigPathCmd())
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.Detailed()
			if short {
				v = version.Short()
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print the version and revision only")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the config file this invocation would read",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(cmd))
			return err
		},
	}
}
