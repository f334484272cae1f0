package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"filesmanager/internal/common"
)

// FSStore keeps each blob as an individual file under root. References are
// the absolute paths of those files.
type FSStore struct {
	root string
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("blob root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) Write(ctx context.Context, data []byte) (string, error) {
	ref := filepath.Join(s.root, uuid.NewString())
	if err := s.Put(ctx, ref, data); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *FSStore) Put(_ context.Context, ref string, data []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (s *FSStore) Read(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FSStore) Exists(_ context.Context, ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// resolve accepts absolute references under root or bare names relative to it.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", common.ErrNotFound
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("blob reference %q outside storage root: %w", ref, common.ErrNotFound)
	}
	return path, nil
}
