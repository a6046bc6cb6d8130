package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore resolves opaque blob references to raw bytes. Upload mechanics
// live behind this boundary.
type BlobStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FSStore is a filesystem-backed blob store. References are paths relative
// to the configured root, or absolute paths when the root is empty.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: strings.TrimSpace(root)}
}

func (s *FSStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	path := ref
	if s.root != "" && !filepath.IsAbs(ref) {
		path = filepath.Join(s.root, ref)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading blob %q: %w", ref, err)
	}

	return data, nil
}
