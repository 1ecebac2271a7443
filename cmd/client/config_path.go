package main

import (
	"os"
	"path/filepath"

	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/spf13/cobra"
)

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) CLAUDE_SYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		filepath.Join(home, ".claude-sync", "config.json"),
		filepath.Join(home, ".config", "claude-sync", "config.json"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}
