package vfs

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shapedtime/classfs/internal/decompiler"
)

// fakeDecompiler understands archives of the form "FAKE\n<name>\n<name>...".
type fakeDecompiler struct {
	parses     atomic.Int32
	decompiles atomic.Int32

	mu      sync.Mutex
	fail    map[string]error
	block   chan struct{}
	started chan string
}

type fakeArchive struct {
	names []string
}

func newFakeDecompiler() *fakeDecompiler {
	return &fakeDecompiler{fail: make(map[string]error)}
}

func fakeArchiveBytes(names ...string) []byte {
	return []byte("FAKE\n" + strings.Join(names, "\n"))
}

func (d *fakeDecompiler) ParseArchive(raw []byte) (decompiler.Archive, error) {
	d.parses.Add(1)
	if !bytes.HasPrefix(raw, []byte("FAKE\n")) {
		return nil, errors.New("bad magic")
	}
	var names []string
	for _, line := range strings.Split(string(raw[5:]), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return &fakeArchive{names: names}, nil
}

func (d *fakeDecompiler) ListSymbols(a decompiler.Archive) ([]decompiler.Symbol, error) {
	fa := a.(*fakeArchive)
	out := make([]decompiler.Symbol, 0, len(fa.names))
	for _, n := range fa.names {
		out = append(out, decompiler.Symbol{QualifiedName: n, Descriptor: n})
	}
	return out, nil
}

func (d *fakeDecompiler) DecompileSymbol(ctx context.Context, a decompiler.Archive, s decompiler.Symbol) (string, error) {
	d.decompiles.Add(1)

	d.mu.Lock()
	block, started, failErr := d.block, d.started, d.fail[s.QualifiedName]
	d.mu.Unlock()

	if started != nil {
		select {
		case started <- s.QualifiedName:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failErr != nil {
		return "", failErr
	}
	return "class " + s.Descriptor.(string) + " {}\n", nil
}

func (d *fakeDecompiler) failOn(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[name] = err
}

func (d *fakeDecompiler) blockDecompiles() (release func(), started <-chan string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = make(chan struct{})
	ch := make(chan string, 16)
	d.started = ch
	block := d.block
	return func() { close(block) }, ch
}

// memSource serves archives from memory and counts reads.
type memSource struct {
	mu    sync.Mutex
	files map[string][]byte
	reads atomic.Int32
}

func newMemSource() *memSource {
	return &memSource{files: make(map[string][]byte)}
}

func (s *memSource) set(locator string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[locator] = data
}

func (s *memSource) remove(locator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, locator)
}

func (s *memSource) ReadArchive(ctx context.Context, locator string) ([]byte, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[locator]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

// memStore is an in-memory ContentStore.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *memStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = bytes.Clone(data)
	return nil
}

// fakeNotifier records subscriptions and watched locators.
type fakeNotifier struct {
	mu      sync.Mutex
	fns     []func(ChangeEvent)
	watched []string
}

func (n *fakeNotifier) Subscribe(fn func(ChangeEvent)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fns = append(n.fns, fn)
}

func (n *fakeNotifier) Watch(locator string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.watched = append(n.watched, locator)
	return nil
}

func (n *fakeNotifier) fire(ev ChangeEvent) {
	n.mu.Lock()
	fns := append([]func(ChangeEvent){}, n.fns...)
	n.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
