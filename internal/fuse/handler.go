//go:build fuse

package fuse

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/billziss-gh/cgofuse/fuse"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/mount"
)

// Handler mounts the archive tree as a read-only FUSE filesystem.
type Handler struct {
	fuseAllowOther bool
	path           string

	host *fuse.FileSystemHost
}

func NewHandler(fuseAllowOther bool, path string) *Handler {
	return &Handler{
		fuseAllowOther: fuseAllowOther,
		path:           path,
	}
}

// Mount starts serving mfs at the handler path. Mounting runs in the
// background; failures are logged.
func (s *Handler) Mount(mfs *mount.FS) error {
	folder := s.path
	// On windows, the folder must not exist
	if runtime.GOOS == "windows" {
		folder = filepath.Dir(s.path)
	}
	if filepath.VolumeName(folder) == folder {
		folder = folder + "\\"
	}
	if err := os.MkdirAll(folder, 0744); err != nil && !os.IsExist(err) {
		return err
	}

	host := fuse.NewFileSystemHost(NewFS(mfs))

	go func() {
		var config []string
		if s.fuseAllowOther {
			config = append(config, "-o", "allow_other")
		}
		config = append(config, "-o", "ro")

		ok := host.Mount(s.path, config)
		if !ok {
			log.Error().Str("path", s.path).Msg("error trying to mount filesystem")
		}
	}()

	s.host = host

	log.Info().Str("path", s.path).Strs("archives", mfs.Table().Names()).Msg("starting FUSE mount")

	return nil
}

func (s *Handler) Unmount() {
	if s.host == nil {
		return
	}

	ok := s.host.Unmount()
	if !ok {
		log.Error().Str("path", s.path).Msg("unmount failed")
	}
}
