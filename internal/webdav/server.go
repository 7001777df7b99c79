package webdav

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/webdav"

	"github.com/shapedtime/classfs/internal/mount"
	"github.com/shapedtime/classfs/internal/vfs"
)

const sourceContentType = "text/x-java-source; charset=utf-8"

// Server wraps a WebDAV server
type Server struct {
	fs      *mount.FS
	handler *webdav.Handler
}

// NewServer creates a new read-only WebDAV server over the mounted archives
func NewServer(mfs *mount.FS) *Server {
	s := &Server{fs: mfs}
	l := log.Logger.With().Str("component", "webdav").Logger()

	s.handler = &webdav.Handler{
		Prefix:     "",
		FileSystem: &webdavFS{fs: mfs},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			e := l.Debug().Str("method", r.Method).Str("path", r.URL.Path)
			if err != nil {
				e = e.Err(err)
			}
			e.Msg("webdav request")
		},
	}

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// webdavFS adapts mount.FS to webdav.FileSystem
type webdavFS struct {
	fs *mount.FS
}

func (wfs *webdavFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission // Read-only filesystem
}

func (wfs *webdavFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	// Reject write operations
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}

	name = mount.Clean(name)

	info, err := wfs.fs.Stat(ctx, name)
	if err != nil {
		return nil, davError(name, err)
	}

	return &webdavFile{fs: wfs.fs, path: name, info: info}, nil
}

func (wfs *webdavFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission // Read-only filesystem
}

func (wfs *webdavFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission // Read-only filesystem
}

func (wfs *webdavFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = mount.Clean(name)
	info, err := wfs.fs.Stat(ctx, name)
	if err != nil {
		return nil, davError(name, err)
	}
	return info, nil
}

// davError reports names that can never be symbols (.DS_Store, Bar.java) as
// missing, so clients probing for them get 404.
func davError(name string, err error) error {
	if errors.Is(err, vfs.ErrMalformedPath) {
		return &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return err
}

// webdavFile is an opened node. Files are decompiled on first read and served
// from memory, so property requests never decompile.
type webdavFile struct {
	fs   *mount.FS
	path string
	info fs.FileInfo

	contentMu sync.Mutex
	content   *bytes.Reader

	// For directory listing
	dirMu      sync.Mutex
	dirEntries []os.FileInfo
	dirPos     int
}

func (f *webdavFile) Close() error {
	return nil
}

func (f *webdavFile) Read(p []byte) (int, error) {
	if f.info.IsDir() {
		return 0, os.ErrInvalid
	}
	r, err := f.reader()
	if err != nil {
		return 0, err
	}
	return r.Read(p)
}

func (f *webdavFile) Seek(offset int64, whence int) (int64, error) {
	if f.info.IsDir() {
		return 0, nil
	}
	r, err := f.reader()
	if err != nil {
		return 0, err
	}
	return r.Seek(offset, whence)
}

func (f *webdavFile) reader() (*bytes.Reader, error) {
	f.contentMu.Lock()
	defer f.contentMu.Unlock()

	if f.content == nil {
		data, err := f.fs.ReadFile(context.Background(), f.path)
		if err != nil {
			log.Warn().Err(err).Str("path", f.path).Msg("webdav: cannot read source")
			return nil, err
		}
		f.content = bytes.NewReader(data)
	}
	return f.content, nil
}

func (f *webdavFile) Readdir(count int) ([]os.FileInfo, error) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	if !f.info.IsDir() {
		return nil, os.ErrInvalid
	}

	// Load directory entries on first call, already sorted by name
	if f.dirEntries == nil {
		entries, err := f.fs.ReadDir(context.Background(), f.path)
		if err != nil {
			return nil, err
		}
		f.dirEntries = append([]os.FileInfo{}, entries...)
	}

	// Return entries
	if count <= 0 {
		// Return all remaining
		entries := f.dirEntries[f.dirPos:]
		f.dirPos = len(f.dirEntries)
		return entries, nil
	}

	// Return up to count entries
	end := f.dirPos + count
	if end > len(f.dirEntries) {
		end = len(f.dirEntries)
	}

	entries := f.dirEntries[f.dirPos:end]
	f.dirPos = end

	return entries, nil
}

func (f *webdavFile) Stat() (os.FileInfo, error) {
	return f.info, nil
}

func (f *webdavFile) Write(p []byte) (int, error) {
	return 0, os.ErrPermission // Read-only
}

// ContentType returns the MIME type for the file
func (f *webdavFile) ContentType(ctx context.Context) (string, error) {
	if f.info.IsDir() {
		return "text/html; charset=utf-8", nil
	}
	return sourceContentType, nil
}

// ETag returns the entity tag for the file
func (f *webdavFile) ETag(ctx context.Context) (string, error) {
	return `"` + strconv.FormatInt(f.info.ModTime().UnixNano(), 16) + "-" + strconv.FormatInt(f.info.Size(), 16) + `"`, nil
}

// Implement DeadPropsHolder to satisfy webdav requirements
func (f *webdavFile) DeadProps() (map[string][]byte, error) {
	return nil, nil
}

func (f *webdavFile) Patch(patches []webdav.Proppatch) ([]webdav.Propstat, error) {
	return nil, os.ErrPermission
}
