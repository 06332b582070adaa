package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskStore keeps images in a local directory served under baseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

// BaseURL is the URL prefix files are served under.
func (d *DiskStore) BaseURL() string {
	return d.baseURL
}

// Handler serves stored files. Mount it at BaseURL.
func (d *DiskStore) Handler() http.Handler {
	return http.StripPrefix(strings.TrimRight(d.baseURL, "/"), http.FileServer(http.Dir(d.dir)))
}

func (d *DiskStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(d.dir, filepath.FromSlash(clean)), nil
}

func (d *DiskStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error) {
	dst, err := d.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Object{}, fmt.Errorf("create media directory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return Object{}, fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(f, readerWithContext(ctx, body)); err != nil {
		f.Close()
		os.Remove(dst)
		return Object{}, fmt.Errorf("write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return Object{}, fmt.Errorf("close media file: %w", err)
	}
	return Object{Key: key, URL: CleanURL(d.baseURL, key)}, nil
}

func (d *DiskStore) Delete(ctx context.Context, key string) error {
	dst, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readerWithContext stops reading once ctx is cancelled.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
