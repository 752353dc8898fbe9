package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath     string
	publicPrefix string
}

// LocalConfig holds configuration for local storage.
type LocalConfig struct {
	BasePath     string `mapstructure:"base_path"`
	PublicPrefix string `mapstructure:"public_prefix"` // URL path the files are served under
}

// NewLocalStorage creates the base directory and returns a LocalStorage.
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = "/uploads"
	}

	return &LocalStorage{
		basePath:     absPath,
		publicPrefix: "/" + strings.Trim(prefix, "/"),
	}, nil
}

// fullPath maps a key into basePath, refusing keys that escape it.
func (s *LocalStorage) fullPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(s.basePath, clean)
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key: %s", key)
	}
	return full, nil
}

// Write stores content atomically through a temp file and rename.
func (s *LocalStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.fullPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Read opens the file for key.
func (s *LocalStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the file for key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// DeletePrefix removes a directory prefix, or the files in the prefix's
// directory whose names start with its last element.
func (s *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := s.fullPath(prefix)
	if err != nil {
		return err
	}
	if p == s.basePath {
		return fmt.Errorf("refusing to delete storage root")
	}

	info, err := os.Stat(p)
	if err == nil && info.IsDir() {
		return os.RemoveAll(p)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat path: %w", err)
	}

	dir, base := filepath.Dir(p), filepath.Base(p)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// Exists reports whether key exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// GetURL returns the public path of an existing key.
func (s *LocalStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return path.Join(s.publicPrefix, filepath.ToSlash(key)), nil
}

// BasePath is the directory files are stored in.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// PublicPrefix is the URL path the files are served under.
func (s *LocalStorage) PublicPrefix() string {
	return s.publicPrefix
}
