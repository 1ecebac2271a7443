package sync

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName holds extra gitignore-style rules at the root of the synced directory
const IgnoreFileName = ".syncignore"

// entries without a slash match at any depth; a trailing slash would anchor them to the root
var defaultIgnoreLines = []string{
	IgnoreFileName,
	workspace.StateDirName + "/",
	// vcs
	".git",
	".hg",
	".svn",
	".jj",
	// build output and dependencies
	"node_modules",
	"build",
	"dist",
	"__pycache__",
	".venv",
	"venv",
	// editors and OS
	".idea",
	".vscode",
	"*.swp",
	"*~",
	"*.tmp",
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which local paths never take part in a sync: the fixed
// defaults, rules from the .syncignore file and the configured exclude globs.
type IgnoreList struct {
	baseDir  string
	excludes []string
	ignore   *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string, excludes []string) (*IgnoreList, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	l := &IgnoreList{baseDir: baseDir, excludes: excludes}
	l.Load()
	return l, nil
}

// Load (re)compiles the rules, picking up edits to the .syncignore file
func (l *IgnoreList) Load() {
	lines := append([]string(nil), defaultIgnoreLines...)

	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	if utils.FileExists(ignorePath) {
		extra, err := readIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("ignore file unreadable", "path", ignorePath, "error", err)
		} else {
			lines = append(lines, extra...)
			slog.Debug("ignore file loaded", "path", ignorePath, "rules", len(extra))
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore takes a forward-slash path relative to the base directory.
// Directories should be passed with a trailing slash.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore.MatchesPath(relPath) {
		return true
	}

	clean := strings.TrimSuffix(relPath, "/")
	for _, pattern := range l.excludes {
		target := clean
		if !strings.Contains(pattern, "/") {
			// bare patterns like "*.log" apply at any depth
			target = path.Base(clean)
		}
		if ok, _ := doublestar.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

func readIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
