// Package vcs detects whether a directory lives inside a version-controlled
// working tree and whether that tree has uncommitted changes.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrNotInVCS is returned when no repository encloses the path
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the repository's binary is not on PATH
	ErrVCSNotAvailable = errors.New("VCS binary not available")
)

type Type string

const (
	TypeGit Type = "git"
	TypeJJ  Type = "jj"
)

// Repo is the repository enclosing a path
type Repo struct {
	Type Type
	Root string
}

// Detect walks up from path looking for .jj or .git. jj wins when both are present
// because a colocated .git is only a mirror of the jj working copy.
func Detect(path string) (*Repo, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	for {
		if info, err := os.Stat(filepath.Join(current, ".jj")); err == nil && info.IsDir() {
			return &Repo{Type: TypeJJ, Root: current}, nil
		}
		// .git may be a file for worktrees and submodules
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return &Repo{Type: TypeGit, Root: current}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// Changes lists the uncommitted changes under the given paths (all of the
// repository when none are given), one porcelain line per change.
func (r *Repo) Changes(ctx context.Context, paths ...string) ([]string, error) {
	var args []string
	switch r.Type {
	case TypeGit:
		args = append([]string{"status", "--porcelain"}, paths...)
	case TypeJJ:
		args = append([]string{"diff", "--summary"}, paths...)
	default:
		return nil, fmt.Errorf("unsupported vcs %q", r.Type)
	}

	bin := string(r.Type)
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVCSNotAvailable, bin)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.Root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w: %s", bin, args[0], err, strings.TrimSpace(stderr.String()))
	}

	var changes []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			changes = append(changes, line)
		}
	}
	return changes, nil
}

// HasChanges reports whether there is anything uncommitted under paths
func (r *Repo) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	changes, err := r.Changes(ctx, paths...)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}
