package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shapedtime/classfs/internal/decompiler"
	"github.com/shapedtime/classfs/internal/vfs"
)

func TestDB(t *testing.T) {
	require := require.New(t)

	s, err := NewDB(t.TempDir())
	require.NoError(err)
	defer s.Close()

	_, ok, err := s.Get("sha256:abc/com.foo.Bar")
	require.NoError(err)
	require.False(ok)

	require.NoError(s.Put("sha256:abc/com.foo.Bar", []byte("class Bar {}")))

	v, ok, err := s.Get("sha256:abc/com.foo.Bar")
	require.NoError(err)
	require.True(ok)
	require.Equal("class Bar {}", string(v))

	n, err := s.Len()
	require.NoError(err)
	require.Equal(1, n)
}

func TestDBPersists(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	s, err := NewDB(dir)
	require.NoError(err)
	require.NoError(s.Put("k", []byte("v")))
	require.NoError(s.Close())

	s, err = NewDB(dir)
	require.NoError(err)
	defer s.Close()

	v, ok, err := s.Get("k")
	require.NoError(err)
	require.True(ok)
	require.Equal("v", string(v))
}

// oneClass decompiles a single-symbol archive and counts its calls.
type oneClass struct {
	calls int
}

func (d *oneClass) ParseArchive(raw []byte) (decompiler.Archive, error) {
	return string(raw), nil
}

func (d *oneClass) ListSymbols(decompiler.Archive) ([]decompiler.Symbol, error) {
	return []decompiler.Symbol{{QualifiedName: "a.B"}}, nil
}

func (d *oneClass) DecompileSymbol(_ context.Context, a decompiler.Archive, _ decompiler.Symbol) (string, error) {
	d.calls++
	return "class B { // " + a.(string) + "\n}\n", nil
}

type mapSource map[string][]byte

func (m mapSource) ReadArchive(_ context.Context, locator string) ([]byte, error) {
	return m[locator], nil
}

func TestDBServesFileSystem(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := NewDB("")
	require.NoError(err)
	defer s.Close()

	src := mapSource{"/a.jar": []byte("v1")}
	dec := &oneClass{}
	fsys := vfs.New(src, dec, vfs.WithContentStore(s))

	first, err := fsys.ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)

	// same bytes, fresh handler: served from the store
	fsys.Invalidate("/a.jar")
	second, err := fsys.ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)
	require.Equal(first, second)
	require.Equal(1, dec.calls)

	// changed bytes are a different key
	src["/a.jar"] = []byte("v2")
	fsys.Invalidate("/a.jar")
	third, err := fsys.ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)
	require.Contains(string(third), "v2")
	require.Equal(2, dec.calls)

	n, err := s.Len()
	require.NoError(err)
	require.Equal(2, n)
}

// styledClass renders with a style that is part of its fingerprint.
type styledClass struct {
	oneClass
	style string
}

func (d *styledClass) DecompileSymbol(ctx context.Context, a decompiler.Archive, s decompiler.Symbol) (string, error) {
	d.calls++
	return "// " + d.style + "\nclass B {}\n", nil
}

func (d *styledClass) Fingerprint() string { return d.style }

func TestDBKeyedByDecompilerFingerprint(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := NewDB("")
	require.NoError(err)
	defer s.Close()

	src := mapSource{"/a.jar": []byte("v1")}

	four := &styledClass{style: "indent=4"}
	b, err := vfs.New(src, four, vfs.WithContentStore(s)).ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)
	require.Equal("// indent=4\nclass B {}\n", string(b))

	// same archive bytes, different settings: rendered again
	two := &styledClass{style: "indent=2"}
	b, err = vfs.New(src, two, vfs.WithContentStore(s)).ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)
	require.Equal("// indent=2\nclass B {}\n", string(b))
	require.Equal(1, two.calls)

	// same settings again: served from the store
	again := &styledClass{style: "indent=4"}
	b, err = vfs.New(src, again, vfs.WithContentStore(s)).ReadFile(ctx, "/a.jar!/a/B")
	require.NoError(err)
	require.Equal("// indent=4\nclass B {}\n", string(b))
	require.Zero(again.calls)
}
