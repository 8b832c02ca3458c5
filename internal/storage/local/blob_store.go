// Package local keeps page snapshots on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory snapshots are written under.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes snapshots under BaseDir. Objects are content addressed, so
// a path that already exists is never rewritten.
type BlobStore struct {
	baseDir string
}

// New prepares BaseDir, creating it when missing, and checks that it accepts
// writes.
func New(cfg Config) (*BlobStore, error) {
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("prepare base directory: %w", err)
	}
	check, err := os.CreateTemp(baseDir, ".writecheck-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return nil, fmt.Errorf("remove write check: %w", err)
	}
	return &BlobStore{baseDir: filepath.Clean(baseDir)}, nil
}

// PutObject writes data to path below the base directory and returns a
// file:// URI. The file appears atomically; readers never see a partial
// snapshot.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data []byte) (string, error) {
	rel, err := snapshotPath(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(contentType) == "" {
		return "", errors.New("content type is required")
	}
	fullPath := filepath.Join(s.baseDir, rel)
	uri := "file://" + fullPath

	if info, err := os.Stat(fullPath); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("snapshot path %q is a directory", path)
		}
		return uri, nil
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish snapshot: %w", err)
	}
	return uri, nil
}

// snapshotPath converts a slash-separated object path into a local relative
// path, refusing anything that could leave the base directory.
func snapshotPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	rel := filepath.FromSlash(path)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("snapshot path %q escapes the base directory", path)
	}
	return filepath.Clean(rel), nil
}
