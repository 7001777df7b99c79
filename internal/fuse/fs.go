//go:build fuse

package fuse

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"sync"

	"github.com/billziss-gh/cgofuse/fuse"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/mount"
	"github.com/shapedtime/classfs/internal/vfs"
)

const fhNone = math.MaxUint64

// FS serves the mounted archives read-only. Files are decompiled on open and
// kept in memory until released.
type FS struct {
	fuse.FileSystemBase

	mfs *mount.FS

	mu      sync.Mutex
	next    uint64
	handles map[uint64][]byte
}

func NewFS(mfs *mount.FS) *FS {
	return &FS{
		mfs:     mfs,
		handles: make(map[uint64][]byte),
	}
}

func (f *FS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	if data, ok := f.handle(fh); ok {
		stat.Mode = fuse.S_IFREG | 0444
		stat.Size = int64(len(data))
		stat.Nlink = 1
		return 0
	}

	fi, err := f.mfs.Stat(context.Background(), path)
	if err != nil {
		return errno(path, err)
	}
	fillStat(stat, fi)
	return 0
}

func (f *FS) Open(path string, flags int) (int, uint64) {
	if flags&fuse.O_ACCMODE != fuse.O_RDONLY {
		return -fuse.EROFS, fhNone
	}

	data, err := f.mfs.ReadFile(context.Background(), path)
	if err != nil {
		return errno(path, err), fhNone
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.handles[f.next] = data
	return 0, f.next
}

func (f *FS) Read(path string, dest []byte, off int64, fh uint64) int {
	data, ok := f.handle(fh)
	if !ok {
		return -fuse.EBADF
	}
	if off >= int64(len(data)) {
		return 0
	}
	return copy(dest, data[off:])
}

func (f *FS) Release(path string, fh uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, fh)
	return 0
}

func (f *FS) Opendir(path string) (int, uint64) {
	fi, err := f.mfs.Stat(context.Background(), path)
	if err != nil {
		return errno(path, err), fhNone
	}
	if !fi.IsDir() {
		return -fuse.ENOTDIR, fhNone
	}
	return 0, fhNone
}

func (f *FS) Readdir(path string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool,
	ofst int64,
	fh uint64) int {
	entries, err := f.mfs.ReadDir(context.Background(), path)
	if err != nil {
		return errno(path, err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, fi := range entries {
		st := &fuse.Stat_t{}
		fillStat(st, fi)
		if !fill(fi.Name(), st, 0) {
			break
		}
	}
	return 0
}

func (f *FS) Mkdir(path string, mode uint32) int              { return -fuse.EROFS }
func (f *FS) Unlink(path string) int                          { return -fuse.EROFS }
func (f *FS) Rmdir(path string) int                           { return -fuse.EROFS }
func (f *FS) Rename(oldpath string, newpath string) int       { return -fuse.EROFS }
func (f *FS) Chmod(path string, mode uint32) int              { return -fuse.EROFS }
func (f *FS) Truncate(path string, size int64, fh uint64) int { return -fuse.EROFS }
func (f *FS) Utimens(path string, tmsp []fuse.Timespec) int   { return -fuse.EROFS }
func (f *FS) Create(path string, flags int, mode uint32) (int, uint64) {
	return -fuse.EROFS, fhNone
}
func (f *FS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	return -fuse.EROFS
}

func (f *FS) handle(fh uint64) ([]byte, bool) {
	if fh == fhNone {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.handles[fh]
	return data, ok
}

func fillStat(stat *fuse.Stat_t, fi fs.FileInfo) {
	if fi.IsDir() {
		stat.Mode = fuse.S_IFDIR | 0555
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | 0444
		stat.Nlink = 1
	}
	stat.Size = fi.Size()
	ts := fuse.NewTimespec(fi.ModTime())
	stat.Mtim = ts
	stat.Ctim = ts
	stat.Atim = ts
}

func errno(path string, err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, vfs.ErrMalformedPath):
		return -fuse.ENOENT
	case errors.Is(err, vfs.ErrNotAFile):
		return -fuse.EISDIR
	case errors.Is(err, vfs.ErrNotADirectory):
		return -fuse.ENOTDIR
	case errors.Is(err, vfs.ErrCancelled):
		return -fuse.EINTR
	default:
		log.Error().Err(err).Str("path", path).Msg("fuse: operation failed")
		return -fuse.EIO
	}
}
