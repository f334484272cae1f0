// Package blob stores raw file content under opaque references.
//
// References are random (uuid) names and never derived from content, so two
// uploads of the same bytes occupy two blobs.
package blob

import (
	"context"
	"fmt"
	"strings"

	"filesmanager/internal/config"
)

// Store persists blobs. Read returns common.ErrNotFound for unknown references.
type Store interface {
	// Write stores data under a new reference.
	Write(ctx context.Context, data []byte) (string, error)
	// Put stores data under a caller-chosen reference, replacing any previous content.
	Put(ctx context.Context, ref string, data []byte) error
	Read(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// DerivativeRef names the resized copy of ref at the given pixel width.
func DerivativeRef(ref string, width int) string {
	return fmt.Sprintf("%s_%d", ref, width)
}

// Open returns the backend selected by cfg.Backend ("fs" when empty).
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return NewFSStore(cfg.FolderPath)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
