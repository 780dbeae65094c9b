// Package imagestore persists normalized listing images in S3-compatible
// object storage, or on local disk in development.
package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// Store saves an object under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New returns the S3 store when enabled, otherwise the local disk store.
func New(cfg *Config) (Store, error) {
	if cfg.Enabled {
		return NewS3Store(cfg)
	}
	log.Warnf("[ImageStore] S3 disabled, storing images under %s", cfg.LocalDir)
	return &LocalStore{Dir: cfg.LocalDir, URLPrefix: cfg.LocalURLPrefix}, nil
}

// LocalStore writes objects below Dir; fiber serves them at URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.Dir, clean), nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return strings.TrimRight(s.URLPrefix, "/") + "/" + key, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
