//go:build !fuse

package fuse

import (
	"fmt"

	"github.com/shapedtime/classfs/internal/mount"
)

// Handler stands in for the FUSE mount. The archives stay reachable over
// WebDAV and the HTTP API.
type Handler struct {
	path string
}

func NewHandler(_ bool, path string) *Handler {
	return &Handler{path: path}
}

// Mount mounts nothing and reports how many archives were left unmounted.
func (s *Handler) Mount(mfs *mount.FS) error {
	return fmt.Errorf("mounting %d archives at %s: %w", len(mfs.Table().Names()), s.path, ErrUnavailable)
}

func (s *Handler) Unmount() {}
