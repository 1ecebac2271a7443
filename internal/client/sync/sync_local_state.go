package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/utils"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultHashCacheSize = 4096

// LocalFile is a regular file found under the local root
type LocalFile struct {
	Path    string
	Size    int64
	ModTime time.Time
	Hash    string
}

type hashCacheEntry struct {
	size    int64
	modTime time.Time
	hash    string
}

// LocalScanner walks the local root and hashes every file that is not ignored.
// Hashes are reused while a file's size and mtime are unchanged; any touch forces a re-hash.
type LocalScanner struct {
	rootDir string
	ignore  *IgnoreList
	cache   *lru.Cache[string, hashCacheEntry]
}

func NewLocalScanner(rootDir string, ignore *IgnoreList, cacheSize int) *LocalScanner {
	s := &LocalScanner{rootDir: rootDir, ignore: ignore}
	if cacheSize > 0 {
		// only fails for a non-positive size
		s.cache, _ = lru.New[string, hashCacheEntry](cacheSize)
	}
	return s
}

func (s *LocalScanner) Scan(ctx context.Context) (map[string]*LocalFile, error) {
	files := make(map[string]*LocalFile)
	s.ignore.Load()

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.rootDir {
			return nil
		}

		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		rel = workspace.NormPath(rel)

		if d.IsDir() {
			if s.ignore.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		// symlinks, sockets and devices are never synced
		if !d.Type().IsRegular() || s.ignore.ShouldIgnore(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("scan", "path", rel, "error", err)
			return nil
		}

		hash, err := s.hash(path, rel, info)
		if err != nil {
			slog.Warn("scan hash", "path", rel, "error", err)
			return nil
		}

		files[rel] = &LocalFile{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    hash,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	return files, nil
}

func (s *LocalScanner) hash(absPath, rel string, info fs.FileInfo) (string, error) {
	if s.cache != nil {
		if c, ok := s.cache.Get(rel); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
			return c.hash, nil
		}
	}

	hash, err := utils.FileHash(absPath)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.cache.Add(rel, hashCacheEntry{size: info.Size(), modTime: info.ModTime(), hash: hash})
	}
	return hash, nil
}
