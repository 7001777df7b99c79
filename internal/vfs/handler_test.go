package vfs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, dec *fakeDecompiler, names ...string) *Handler {
	t.Helper()
	h, err := NewHandler("/tmp/app.archive", fakeArchiveBytes(names...), dec)
	require.NoError(t, err)
	return h
}

func TestHandlerScenario(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newTestHandler(t, newFakeDecompiler(), "com.foo.Bar", "com.foo.Baz", "com.other.Qux")

	require.Equal([]string{"com"}, h.ListChildren(""))
	require.Equal([]string{"foo", "other"}, h.ListChildren("com"))
	require.Equal([]string{"Bar", "Baz"}, h.ListChildren("com.foo"))
	require.Empty(h.ListChildren("com.foo.Bar"))

	require.True(h.IsPackage(""))
	require.True(h.IsPackage("com.foo"))
	require.False(h.IsPackage("com.foo.Bar"))
	require.True(h.Exists("com.foo.Bar"))
	require.False(h.Exists("com.foo.Qux"))
	require.False(h.Exists("co"))
	require.False(h.IsPackage("com.fo"))
}

func TestHandlerPackageProperties(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	names := []string{"a.B", "a.b.C", "a$x.Y", "a-b.Z", "ab.D", "Top", "a.b.c.d.E"}
	h := newTestHandler(t, newFakeDecompiler(), names...)

	candidates := []string{"", "a", "a.b", "a.b.c", "a.b.c.d", "a$x", "a-b", "ab", "Top", "a.B", "b", "a.b.C", "a.b.c.d.E", "x"}
	for _, q := range candidates {
		wantPkg := q == ""
		exact := false
		for _, n := range names {
			if q != "" && strings.HasPrefix(n, q+".") {
				wantPkg = true
			}
			if n == q {
				exact = true
			}
		}
		require.Equal(wantPkg, h.IsPackage(q), "IsPackage(%q)", q)
		require.Equal(wantPkg || exact, h.Exists(q), "Exists(%q)", q)
	}

	for _, q := range candidates {
		children := h.ListChildren(q)
		seen := map[string]bool{}
		for _, c := range children {
			require.NotEmpty(c, "ListChildren(%q)", q)
			require.False(seen[c], "duplicate %q in ListChildren(%q)", c, q)
			seen[c] = true
		}
	}

	require.Equal([]string{"B", "b"}, h.ListChildren("a"))
	require.Equal([]string{"Top", "a", "a$x", "a-b", "ab"}, h.ListChildren(""))
}

func TestHandlerRejectsBadArchive(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := NewHandler("/tmp/broken", []byte("garbage"), newFakeDecompiler())
	require.ErrorIs(err, ErrArchiveParse)
	var ape *ArchiveParseError
	require.ErrorAs(err, &ape)
	require.Equal("/tmp/broken", ape.Locator)
}

func TestHandlerRejectsDuplicateSymbols(t *testing.T) {
	t.Parallel()

	_, err := NewHandler("/tmp/dup", fakeArchiveBytes("a.B", "a.B"), newFakeDecompiler())
	require.ErrorIs(t, err, ErrArchiveParse)
}

func TestHandlerSkipsInvalidNames(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newTestHandler(t, newFakeDecompiler(), "a.B", "a..C", "x/y.Z", ".D")
	require.Equal([]string{"a.B"}, h.Symbols())
}

func TestHandlerDecompile(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dec := newFakeDecompiler()
	h := newTestHandler(t, dec, "com.foo.Bar")

	first, err := h.Decompile(context.Background(), "com.foo.Bar")
	require.NoError(err)
	require.NotEmpty(first)

	second, err := h.Decompile(context.Background(), "com.foo.Bar")
	require.NoError(err)
	require.Equal(first, second)

	_, err = h.Decompile(context.Background(), "com.foo")
	require.ErrorIs(err, ErrSymbolNotFound)

	_, err = h.Decompile(context.Background(), "com.foo.Nope")
	require.ErrorIs(err, ErrSymbolNotFound)
}

func TestHandlerDecompileError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dec := newFakeDecompiler()
	boom := errors.New("boom")
	dec.failOn("a.Broken", boom)
	h := newTestHandler(t, dec, "a.Broken", "a.Fine")

	_, err := h.Decompile(context.Background(), "a.Broken")
	require.ErrorIs(err, ErrDecompile)
	require.ErrorIs(err, boom)
	require.NotErrorIs(err, ErrCancelled)

	// the handler stays usable
	b, err := h.Decompile(context.Background(), "a.Fine")
	require.NoError(err)
	require.Equal("class a.Fine {}\n", string(b))
}

func TestHandlerDecompileCancelled(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dec := newFakeDecompiler()
	h := newTestHandler(t, dec, "a.Slow")
	release, started := dec.blockDecompiles()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.Decompile(ctx, "a.Slow")
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrCancelled)
		require.ErrorIs(err, ErrDecompile)
	case <-time.After(5 * time.Second):
		t.Fatal("decompile did not observe cancellation")
	}

	release()
	b, err := h.Decompile(context.Background(), "a.Slow")
	require.NoError(err)
	require.Equal("class a.Slow {}\n", string(b))
}

func TestHandlerCancelledWaiterDoesNotFailOthers(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dec := newFakeDecompiler()
	h := newTestHandler(t, dec, "a.Shared")
	release, started := dec.blockDecompiles()

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.Decompile(ctx, "a.Shared")
		firstErr <- err
	}()
	<-started

	secondRes := make(chan []byte, 1)
	secondErr := make(chan error, 1)
	go func() {
		b, err := h.Decompile(context.Background(), "a.Shared")
		secondRes <- b
		secondErr <- err
	}()

	cancel()
	require.ErrorIs(<-firstErr, ErrCancelled)

	release()
	require.NoError(<-secondErr)
	require.Equal("class a.Shared {}\n", string(<-secondRes))
}

func TestHandlerUsesContentStore(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	store := newMemStore()
	dec := newFakeDecompiler()

	h1 := newTestHandler(t, dec, "a.B")
	h1.store = store
	b1, err := h1.Decompile(context.Background(), "a.B")
	require.NoError(err)

	h2 := newTestHandler(t, dec, "a.B")
	h2.store = store
	b2, err := h2.Decompile(context.Background(), "a.B")
	require.NoError(err)

	require.Equal(b1, b2)
	require.EqualValues(1, dec.decompiles.Load())
	require.Equal(h1.Digest(), h2.Digest())

	// different archive bytes get a different key
	h3 := newTestHandler(t, dec, "a.B", "a.C")
	h3.store = store
	_, err = h3.Decompile(context.Background(), "a.B")
	require.NoError(err)
	require.EqualValues(2, dec.decompiles.Load())
}
