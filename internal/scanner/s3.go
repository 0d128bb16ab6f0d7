package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/storage"
)

// S3Source mirrors photos from an object-store prefix into a local cache
// directory so the extraction pipeline only ever reads local files.
type S3Source struct {
	store    storage.ObjectStorage
	prefix   string
	cacheDir string
	log      *logger.Logger
}

// NewS3Source creates a source for the given prefix backed by store.
// Downloads land under cacheDir, preserving the object key layout.
func NewS3Source(store storage.ObjectStorage, prefix, cacheDir string, log *logger.Logger) *S3Source {
	return &S3Source{
		store:    store,
		prefix:   prefix,
		cacheDir: cacheDir,
		log:      log.WithField(logger.FieldComponent, "s3source"),
	}
}

// ParseURI splits an s3://bucket/prefix URI into bucket and prefix.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in URI: %s", uri)
	}
	return bucket, prefix, nil
}

// Discover lists image objects under the prefix, downloads the ones not
// yet cached, and returns the local paths in deterministic order.
func (s *S3Source) Discover(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	var paths []string
	for _, key := range keys {
		if !IsImage(key) {
			continue
		}

		local := filepath.Join(s.cacheDir, filepath.FromSlash(key))
		if _, err := os.Stat(local); err != nil {
			if err := s.download(ctx, key, local); err != nil {
				s.log.WithError(err).WithField(logger.FieldPath, key).Warn("Skipping object that failed to download")
				continue
			}
		}
		paths = append(paths, local)
	}

	sort.Strings(paths)
	return paths, nil
}

func (s *S3Source) download(ctx context.Context, key, local string) error {
	body, err := s.store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), local)
}
