package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileHash calculates the SHA-256 content hash of a file
func FileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return ReaderHash(file)
}

// ReaderHash calculates the SHA-256 hash of everything read from r
func ReaderHash(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// BytesHash calculates the SHA-256 hash of an in-memory buffer
func BytesHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CopyFile copies src to dst, creating parent directories, and flushes dst to disk.
// Returns the number of bytes copied.
func CopyFile(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()

	return CopyReader(srcFile, dst)
}

// CopyReader streams r into dst, creating parent directories, and flushes dst to disk.
func CopyReader(r io.Reader, dst string) (int64, error) {
	if err := EnsureParent(dst); err != nil {
		return 0, err
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(dstFile, r)
	if err != nil {
		dstFile.Close()
		return n, err
	}

	if err := dstFile.Sync(); err != nil {
		dstFile.Close()
		return n, err
	}

	return n, dstFile.Close()
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
// When expectedHash is non-empty the written bytes must hash to it or nothing is renamed.
func WriteFileAtomic(path string, data []byte, expectedHash string) error {
	if err := EnsureParent(path); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// the temp file is gone after a successful rename
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	if _, err := io.MultiWriter(tmp, hasher).Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if expectedHash != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != expectedHash {
			tmp.Close()
			return fmt.Errorf("integrity check failed: expected %s got %s", expectedHash, got)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
