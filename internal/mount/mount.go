// Package mount exposes named archives as top-level directories of a single
// tree, the view served over WebDAV, FUSE and the API.
package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/vfs"
)

// Archive is one mounted archive.
type Archive struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
}

// Table maps mount names to archive locators.
type Table struct {
	archives []Archive
	byName   map[string]Archive
}

// NewTable validates names: non-empty, unique and without '/'.
func NewTable(archives []Archive) (*Table, error) {
	t := &Table{byName: make(map[string]Archive, len(archives))}
	for _, a := range archives {
		switch {
		case a.Name == "" || a.Name == "." || a.Name == "..":
			return nil, fmt.Errorf("mount: invalid name %q", a.Name)
		case strings.Contains(a.Name, "/"):
			return nil, fmt.Errorf("mount: name %q contains '/'", a.Name)
		case a.Locator == "":
			return nil, fmt.Errorf("mount: %s has no locator", a.Name)
		}
		if _, dup := t.byName[a.Name]; dup {
			return nil, fmt.Errorf("mount: duplicate name %q", a.Name)
		}
		t.byName[a.Name] = a
		t.archives = append(t.archives, a)
	}
	return t, nil
}

// Archives returns the mounted archives in configuration order.
func (t *Table) Archives() []Archive {
	return append([]Archive(nil), t.archives...)
}

// Names returns the mount names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.archives))
	for _, a := range t.archives {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Translate maps a mount path /<name>/<rel> to the archive path
// <locator>!/<rel>. The synthetic top directory "/" yields top == true.
func (t *Table) Translate(p string) (vpath string, top bool, err error) {
	p = Clean(p)
	if p == "/" {
		return "", true, nil
	}

	name, rel, _ := strings.Cut(p[1:], "/")
	a, ok := t.byName[name]
	if !ok {
		return "", false, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	return vfs.JoinPath(a.Locator, rel), false, nil
}

// Clean normalizes p to an absolute slash path.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// FS is the mounted tree backed by a FileSystem.
type FS struct {
	table   *Table
	fsys    *vfs.FileSystem
	started time.Time
}

// NewFS serves table through fsys.
func NewFS(table *Table, fsys *vfs.FileSystem) *FS {
	return &FS{table: table, fsys: fsys, started: time.Now()}
}

func (m *FS) Table() *Table { return m.table }

func (m *FS) FileSystem() *vfs.FileSystem { return m.fsys }

// Resolve returns the node behind a mount path. The top directory has no
// node and yields nil. Missing entries report fs.ErrNotExist.
func (m *FS) Resolve(ctx context.Context, p string) (*vfs.Node, error) {
	vpath, top, err := m.table.Translate(p)
	if err != nil {
		return nil, err
	}
	if top {
		return nil, nil
	}

	n, err := m.fsys.ResolvePath(ctx, vpath)
	if err != nil {
		return nil, notExist(p, err)
	}
	return n, nil
}

// Stat describes a mount path. Archive roots carry their mount name.
func (m *FS) Stat(ctx context.Context, p string) (fs.FileInfo, error) {
	p = Clean(p)
	n, err := m.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return vfs.NewFileInfo("/", 0, true, m.started), nil
	}
	if n.IsRoot() {
		return vfs.NewFileInfo(path.Base(p), 0, true, n.ModTime()), nil
	}
	return m.stat(ctx, n)
}

// stat describes n. A class that fails to decompile is still described, with
// size 0, and reading it reports the error. Cancellation is returned as is.
func (m *FS) stat(ctx context.Context, n *vfs.Node) (fs.FileInfo, error) {
	fi, err := n.Stat(ctx)
	if err == nil {
		return fi, nil
	}
	if !errors.Is(err, vfs.ErrDecompile) || errors.Is(err, vfs.ErrCancelled) || ctx.Err() != nil {
		return nil, err
	}
	log.Warn().Err(err).Str("path", n.Path()).Msg("mount: cannot decompile entry")
	return vfs.NewFileInfo(n.Name(), 0, false, n.ModTime()), nil
}

// ReadDir lists a directory, sorted by name.
func (m *FS) ReadDir(ctx context.Context, p string) ([]fs.FileInfo, error) {
	n, err := m.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	if n == nil {
		names := m.table.Names()
		out := make([]fs.FileInfo, 0, len(names))
		for _, name := range names {
			fi, err := m.Stat(ctx, "/"+name)
			if err != nil {
				// an unreadable archive still shows up as an empty directory
				fi = vfs.NewFileInfo(name, 0, true, m.started)
			}
			out = append(out, fi)
		}
		return out, nil
	}

	children, err := m.fsys.List(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]fs.FileInfo, 0, len(children))
	for _, c := range children {
		fi, err := m.stat(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, nil
}

// ReadFile returns the decompiled source behind a mount path.
func (m *FS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	n, err := m.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, &vfs.NotAFileError{Path: Clean(p)}
	}
	return n.ReadBytes(ctx)
}

// Refresh drops every cached archive.
func (m *FS) Refresh() { m.fsys.Refresh() }

// notExist reports missing symbols as a bare fs.ErrNotExist, which is what
// os.IsNotExist recognizes.
func notExist(p string, err error) error {
	if errors.Is(err, vfs.ErrSymbolNotFound) {
		log.Debug().Err(err).Str("path", p).Msg("mount: no such entry")
		return &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	return err
}
