package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
)

// LocalStorage keeps blobs as files under a single directory
type LocalStorage struct {
	dir string
}

// NewLocal creates the directory if needed
func NewLocal(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) path(locator string) (string, error) {
	if locator == "" || strings.ContainsAny(locator, `/\`) || locator == "." || locator == ".." {
		return "", apperr.Newf(apperr.InvalidArgument, "invalid locator %q", locator)
	}
	return filepath.Join(s.dir, locator), nil
}

// Store writes data to a new file and returns its name as the locator
func (s *LocalStorage) Store(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	locator := objectName(suggestedName)
	if err := os.WriteFile(filepath.Join(s.dir, locator), data, 0o644); err != nil {
		return "", apperr.Wrap(err, apperr.StorageError, "failed to store file")
	}
	return locator, nil
}

// Read returns the blob behind locator
func (s *LocalStorage) Read(ctx context.Context, locator string) ([]byte, error) {
	p, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.New(apperr.NotFound, "file not found")
		}
		return nil, apperr.Wrap(err, apperr.StorageError, "failed to read file")
	}
	return data, nil
}

// Delete removes the blob; a missing file is not an error
func (s *LocalStorage) Delete(ctx context.Context, locator string) error {
	p, err := s.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(err, apperr.StorageError, "failed to delete file")
	}
	return nil
}
