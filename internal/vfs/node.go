package vfs

import (
	"context"
	"io/fs"
	"path"
	"time"
)

// Kind tags a node as the archive root or as a package/class entry.
type Kind int

const (
	KindRoot Kind = iota
	KindEntry
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// Node is a resolved entry of the virtual tree. Whether it is a directory,
// and whether it still exists, is derived from the owning handler on every
// call. The parent is referenced by path and looked up through the
// FileSystem, never held directly.
type Node struct {
	kind          Kind
	path          string
	name          string
	parent        string
	qualifiedName string
	handler       *Handler
}

func newRootNode(h *Handler) *Node {
	return &Node{
		kind:    KindRoot,
		path:    RootPath(h.Locator()),
		name:    path.Base(h.Locator()),
		handler: h,
	}
}

func newEntryNode(h *Handler, parent *Node, name string) *Node {
	q := name
	if parent.kind == KindEntry {
		q = parent.qualifiedName + "." + name
	}
	return &Node{
		kind:          KindEntry,
		path:          childPath(parent.path, name),
		name:          name,
		parent:        parent.path,
		qualifiedName: q,
		handler:       h,
	}
}

// Kind returns the node's tag.
func (n *Node) Kind() Kind { return n.kind }

// Path returns the full path, "<locator>!/<relative>".
func (n *Node) Path() string { return n.path }

// Name returns the display name: the last segment, or the archive file name
// for the root.
func (n *Node) Name() string { return n.name }

// Locator returns the archive locator the node belongs to.
func (n *Node) Locator() string { return n.handler.Locator() }

// QualifiedName returns the dotted name; empty for the root.
func (n *Node) QualifiedName() string { return n.qualifiedName }

// IsRoot reports whether the node is the archive root.
func (n *Node) IsRoot() bool { return n.kind == KindRoot }

// ParentPath returns the path of the parent node; false for the root.
func (n *Node) ParentPath() (string, bool) {
	if n.kind == KindRoot {
		return "", false
	}
	return n.parent, true
}

// URL returns the node path in protocol form.
func (n *Node) URL() string { return URL(n.path) }

// IsDir reports whether the node is a directory. A name that is both an
// exact symbol and a package prefix is treated as a file.
func (n *Node) IsDir() bool {
	switch n.kind {
	case KindRoot:
		return true
	default:
		if n.handler.IsClass(n.qualifiedName) {
			return false
		}
		return n.handler.IsPackage(n.qualifiedName)
	}
}

// IsValid reports whether the node still names a symbol or package.
func (n *Node) IsValid() bool {
	switch n.kind {
	case KindRoot:
		return true
	default:
		return n.handler.Exists(n.qualifiedName)
	}
}

// IsWritable is always false.
func (n *Node) IsWritable() bool { return false }

// ListChildrenNames returns the names of the immediate children.
func (n *Node) ListChildrenNames() []string {
	if !n.IsDir() {
		return nil
	}
	return n.handler.ListChildren(n.qualifiedName)
}

// ReadBytes decompiles the node's symbol.
func (n *Node) ReadBytes(ctx context.Context) ([]byte, error) {
	if n.IsDir() {
		return nil, &NotAFileError{Path: n.path}
	}
	return n.handler.Decompile(ctx, n.qualifiedName)
}

// Size returns the length of the decompiled content, or zero for a directory.
func (n *Node) Size(ctx context.Context) (int64, error) {
	if n.IsDir() {
		return 0, nil
	}
	b, err := n.ReadBytes(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// ModTime returns when the owning archive was parsed.
func (n *Node) ModTime() time.Time { return n.handler.ParsedAt() }

// Stat returns file info for the node. Files are decompiled to learn their size.
func (n *Node) Stat(ctx context.Context) (fs.FileInfo, error) {
	if !n.IsValid() {
		return nil, &SymbolNotFoundError{Locator: n.Locator(), QualifiedName: n.qualifiedName}
	}
	size, err := n.Size(ctx)
	if err != nil {
		return nil, err
	}
	return NewFileInfo(n.name, size, n.IsDir(), n.ModTime()), nil
}

func (n *Node) readOnly(op string) error {
	return &ReadOnlyError{Op: op, Path: n.path}
}

// Write always fails: the tree is read-only.
func (n *Node) Write(data []byte) error { return n.readOnly("write") }

// Rename always fails: the tree is read-only.
func (n *Node) Rename(newName string) error { return n.readOnly("rename") }

// Move always fails: the tree is read-only.
func (n *Node) Move(newParent *Node) error { return n.readOnly("move") }

// Copy always fails: the tree is read-only.
func (n *Node) Copy(newParent *Node, name string) (*Node, error) { return nil, n.readOnly("copy") }

// Delete always fails: the tree is read-only.
func (n *Node) Delete() error { return n.readOnly("delete") }

// CreateChildFile always fails: the tree is read-only.
func (n *Node) CreateChildFile(name string) (*Node, error) {
	return nil, n.readOnly("create file")
}

// CreateChildDirectory always fails: the tree is read-only.
func (n *Node) CreateChildDirectory(name string) (*Node, error) {
	return nil, n.readOnly("create directory")
}

// SetWritable always fails: the tree is read-only.
func (n *Node) SetWritable(writable bool) error { return n.readOnly("set writable") }

// SetTimestamp always fails: the tree is read-only.
func (n *Node) SetTimestamp(t time.Time) error { return n.readOnly("set timestamp") }
