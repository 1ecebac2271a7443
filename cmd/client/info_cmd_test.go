package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/eric-downes/claude-sync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execInfo(t *testing.T, args ...string) string {
	t.Helper()
	root := newTestRoot()
	root.AddCommand(newVersionCmd(), newConfigPathCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return strings.TrimSpace(out.String())
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, version.Detailed(), execInfo(t, "version"))
	assert.Equal(t, version.Short(), execInfo(t, "version", "--short"))
}

func TestConfigPathCommand(t *testing.T) {
	t.Setenv("CLAUDE_SYNC_CONFIG_PATH", "/tmp/env/config.json")
	assert.Equal(t, "/tmp/env/config.json", execInfo(t, "config-path"))
	assert.Equal(t, "/tmp/flag/config.json", execInfo(t, "config-path", "--config", "/tmp/flag/config.json"))
}
