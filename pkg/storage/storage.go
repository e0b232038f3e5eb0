package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/arnavshah/volunteer-portal-go/pkg/config"
)

// Storage keeps opaque blobs such as proof evidence and certificate artifacts.
// Locators returned by Store are the only handle callers keep.
type Storage interface {
	Store(ctx context.Context, data []byte, suggestedName string) (string, error)
	Read(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

// New builds the Storage selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectName derives a collision-free name that keeps the suggested extension
func objectName(suggested string) string {
	base := filepath.Base(strings.ReplaceAll(suggested, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	if len(base) > 80 {
		base = base[len(base)-80:]
	}
	return uuid.NewString() + "_" + base
}
