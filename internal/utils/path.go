package utils

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxSegmentLength = 200

var ErrUnsafePath = errors.New("unsafe path")

// segmentReplacer maps characters that are unsafe in file names on common filesystems
var segmentReplacer = strings.NewReplacer(
	`\`, "-",
	":", "-",
	"*", "-",
	"?", "-",
	`"`, "",
	"<", "-",
	">", "-",
	"|", "-",
	"\n", " ",
	"\r", " ",
)

func ResolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(p, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		p = strings.Replace(p, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(p string) error {
	return EnsureDir(filepath.Dir(p))
}

func EnsureDir(p string) error {
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	return os.MkdirAll(p, 0o755)
}

func DirExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ProbeWritable creates and removes a scratch file in dir.
// Mode bits alone lie on read-only mounts and ACL-controlled directories.
func ProbeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// SafeName maps an identifier onto a single file name. Letters, digits, dash,
// underscore and dot are kept and everything else becomes '_'. A rewritten name
// gets a short hash of the original so distinct identifiers stay distinct.
func SafeName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
	if name == id && strings.Trim(name, ".") != "" {
		return name
	}
	return name + "-" + BytesHash([]byte(id))[:8]
}

// NormRelPath converts an OS relative path into the forward-slash form used as a state key.
func NormRelPath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// SanitizeRelPath turns a remote file path into a safe local relative path.
// Each segment has unsafe characters replaced and is length-limited; empty, "." and ".."
// segments, and absolute paths, are rejected.
func SanitizeRelPath(remotePath string) (string, error) {
	p := strings.ReplaceAll(remotePath, `\`, "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, remotePath)
	}

	parts := strings.Split(p, "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, remotePath)
		}

		seg := strings.Join(strings.Fields(segmentReplacer.Replace(part)), " ")
		if len(seg) > maxSegmentLength {
			cut := maxSegmentLength
			for cut > 0 && !utf8.RuneStart(seg[cut]) {
				cut--
			}
			seg = strings.TrimRight(seg[:cut], " ")
		}
		if seg == "" {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, remotePath)
		}
		clean = append(clean, seg)
	}

	if len(clean) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}

	return strings.Join(clean, "/"), nil
}
