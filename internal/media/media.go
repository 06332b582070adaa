package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/isdelr/milligram-be/internal/config"
)

// Object identifies a stored media file.
type Object struct {
	Key string
	URL string
}

// Store persists uploaded images outside the database.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// New creates the media store selected by cfg.MediaDriver.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.MediaDriver {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "disk":
		return NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	default:
		return nil, fmt.Errorf("unsupported media driver %q", cfg.MediaDriver)
	}
}

// CleanURL joins a base URL and an object key with exactly one slash.
func CleanURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
