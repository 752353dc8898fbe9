package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the object store used for uploaded media.
type Storage interface {
	// Write stores content from r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read returns the content for key. The caller closes the reader.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a URL clients can fetch key from. S3 returns a public
	// or presigned URL valid for expires; local storage returns a path under
	// its public prefix.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Config selects and configures a Storage backend.
type Config struct {
	Driver string      `mapstructure:"driver"` // "local" or "s3"
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		s, err := NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local", "":
		s, err := NewLocalStorage(cfg.Local)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.Driver)
	}
}
