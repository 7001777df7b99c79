package vfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/shapedtime/classfs/internal/decompiler"
	"github.com/shapedtime/classfs/internal/metrics"
)

// errStaleHandler means a handler was parsed while its locator was being
// invalidated; the caller must load it again.
var errStaleHandler = errors.New("handler invalidated during load")

// FileSystem is the entry point of the virtual tree. It owns the handler
// cache (by archive locator) and the node cache (by full path).
//
// Lock order is handlersMu before nodesMu. Invalidate holds both while it
// removes a handler and its nodes, and node insertion re-checks under both
// that its handler is still current, so no node backed by an evicted handler
// can be cached once Invalidate returns.
type FileSystem struct {
	source   Source
	dec      decompiler.Decompiler
	store    ContentStore
	metrics  *metrics.Metrics
	notifier ChangeNotifier

	handlersMu  sync.RWMutex
	handlers    map[string]*Handler
	generations map[string]uint64
	epoch       uint64
	loads       singleflight.Group

	nodesMu sync.RWMutex
	nodes   map[string]*Node
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithMetrics instruments the filesystem.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FileSystem) { f.metrics = m }
}

// WithContentStore persists decompiled sources.
func WithContentStore(s ContentStore) Option {
	return func(f *FileSystem) { f.store = s }
}

// WithNotifier subscribes the filesystem to archive change events.
func WithNotifier(n ChangeNotifier) Option {
	return func(f *FileSystem) { f.notifier = n }
}

// New creates a filesystem reading archives from source and decompiling them
// with dec.
func New(source Source, dec decompiler.Decompiler, opts ...Option) *FileSystem {
	f := &FileSystem{
		source:      source,
		dec:         dec,
		handlers:    make(map[string]*Handler),
		generations: make(map[string]uint64),
		nodes:       make(map[string]*Node),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	if f.notifier != nil {
		f.notifier.Subscribe(f.onChange)
	}
	return f
}

func (f *FileSystem) onChange(ev ChangeEvent) {
	f.Invalidate(ev.Locator)
}

// ResolvePath returns the node for a full path "<locator>!/<relative>".
// Repeated calls return the same *Node until the locator is invalidated.
// A path naming no symbol or package yields ErrSymbolNotFound and is not cached.
func (f *FileSystem) ResolvePath(ctx context.Context, p string) (*Node, error) {
	if n, ok := f.FindCached(p); ok {
		return n, nil
	}

	locator, relative, err := SplitRootAndRelative(p)
	if err != nil {
		return nil, err
	}
	qualifiedName := RelativePathToQualifiedName(relative)
	segments := QualifiedNameToSegments(qualifiedName)

	for {
		h, err := f.Handler(ctx, locator)
		if err != nil {
			return nil, err
		}
		if !h.Exists(qualifiedName) {
			return nil, &SymbolNotFoundError{Locator: locator, QualifiedName: qualifiedName}
		}
		if n, ok := f.insert(h, segments); ok {
			return n, nil
		}
		log.Debug().Str("locator", locator).Msg("vfs: handler replaced during resolve, retrying")
	}
}

// insert walks from the archive root to the leaf, creating and caching one
// node per segment. It reports false if h is no longer the current handler.
func (f *FileSystem) insert(h *Handler, segments []string) (*Node, bool) {
	f.handlersMu.RLock()
	defer f.handlersMu.RUnlock()

	if f.handlers[h.Locator()] != h {
		return nil, false
	}

	f.nodesMu.Lock()
	defer f.nodesMu.Unlock()

	rootPath := RootPath(h.Locator())
	n, ok := f.nodes[rootPath]
	if !ok {
		n = newRootNode(h)
		f.nodes[rootPath] = n
	}
	for _, name := range segments {
		p := childPath(n.path, name)
		child, ok := f.nodes[p]
		if !ok {
			child = newEntryNode(h, n, name)
			f.nodes[p] = child
		}
		n = child
	}
	f.metrics.SetCacheSizes(len(f.handlers), len(f.nodes))
	return n, true
}

// FindCached returns the node for p only if it is already cached.
func (f *FileSystem) FindCached(p string) (*Node, bool) {
	f.nodesMu.RLock()
	defer f.nodesMu.RUnlock()
	n, ok := f.nodes[p]
	return n, ok
}

// RefreshAndResolve drops the cached state of the path's archive and
// resolves the path against a fresh parse.
func (f *FileSystem) RefreshAndResolve(ctx context.Context, p string) (*Node, error) {
	locator, _, err := SplitRootAndRelative(p)
	if err != nil {
		return nil, err
	}
	f.Invalidate(locator)
	return f.ResolvePath(ctx, p)
}

// ReadFile resolves p and returns its decompiled content.
func (f *FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	n, err := f.ResolvePath(ctx, p)
	if err != nil {
		return nil, err
	}
	return n.ReadBytes(ctx)
}

// List returns the children of a directory node, sorted by name.
func (f *FileSystem) List(ctx context.Context, n *Node) ([]*Node, error) {
	if !n.IsDir() {
		return nil, &NotADirectoryError{Path: n.Path()}
	}
	names := n.ListChildrenNames()
	out := make([]*Node, 0, len(names))
	for _, name := range names {
		child, err := f.ResolvePath(ctx, childPath(n.Path(), name))
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Parent returns the node's parent, or nil for an archive root.
func (f *FileSystem) Parent(ctx context.Context, n *Node) (*Node, error) {
	p, ok := n.ParentPath()
	if !ok {
		return nil, nil
	}
	return f.ResolvePath(ctx, p)
}

// Handler returns the cached handler for locator, parsing the archive on
// first access. Concurrent first accesses share a single parse. Failed parses
// are not cached.
func (f *FileSystem) Handler(ctx context.Context, locator string) (*Handler, error) {
	for {
		f.handlersMu.RLock()
		h, ok := f.handlers[locator]
		f.handlersMu.RUnlock()
		if ok {
			return h, nil
		}

		ch := f.loads.DoChan(locator, func() (interface{}, error) {
			return f.load(context.WithoutCancel(ctx), locator)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if errors.Is(r.Err, errStaleHandler) {
				continue
			}
			if r.Err != nil {
				return nil, r.Err
			}
			return r.Val.(*Handler), nil
		}
	}
}

func (f *FileSystem) load(ctx context.Context, locator string) (*Handler, error) {
	f.handlersMu.RLock()
	if h, ok := f.handlers[locator]; ok {
		f.handlersMu.RUnlock()
		return h, nil
	}
	epoch, gen := f.epoch, f.generations[locator]
	f.handlersMu.RUnlock()

	raw, err := f.source.ReadArchive(ctx, locator)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("archive %s: %w: %w", locator, ErrSymbolNotFound, err)
		}
		return nil, fmt.Errorf("read archive %s: %w", locator, err)
	}

	start := time.Now()
	h, err := NewHandler(locator, raw, f.dec)
	f.metrics.ObserveParse(time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Str("locator", locator).Msg("vfs: archive parse failed")
		return nil, err
	}
	h.store = f.store
	h.metrics = f.metrics

	f.handlersMu.Lock()
	if f.epoch != epoch || f.generations[locator] != gen {
		f.handlersMu.Unlock()
		return nil, errStaleHandler
	}
	if existing, ok := f.handlers[locator]; ok {
		f.handlersMu.Unlock()
		return existing, nil
	}
	f.handlers[locator] = h
	f.handlersMu.Unlock()

	log.Info().
		Str("locator", locator).
		Int("symbols", len(h.names)).
		Dur("took", time.Since(start)).
		Msg("vfs: archive handler created")

	if f.notifier != nil {
		if err := f.notifier.Watch(locator); err != nil {
			log.Warn().Err(err).Str("locator", locator).Msg("vfs: cannot watch archive for changes")
		}
	}
	return h, nil
}

// Invalidate evicts the handler for locator and every node rooted at it as
// one step. The next access re-reads and re-parses the archive.
func (f *FileSystem) Invalidate(locator string) {
	f.handlersMu.Lock()
	defer f.handlersMu.Unlock()
	f.nodesMu.Lock()
	defer f.nodesMu.Unlock()

	f.generations[locator]++
	f.loads.Forget(locator)

	_, had := f.handlers[locator]
	delete(f.handlers, locator)

	prefix := RootPath(locator)
	removed := 0
	for p := range f.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(f.nodes, p)
			removed++
		}
	}

	f.metrics.Invalidated()
	f.metrics.SetCacheSizes(len(f.handlers), len(f.nodes))

	log.Debug().
		Str("locator", locator).
		Bool("had_handler", had).
		Int("nodes_removed", removed).
		Msg("vfs: archive invalidated")
}

// Refresh clears both caches.
func (f *FileSystem) Refresh() {
	f.handlersMu.Lock()
	defer f.handlersMu.Unlock()
	f.nodesMu.Lock()
	defer f.nodesMu.Unlock()

	f.epoch++
	for locator := range f.handlers {
		f.loads.Forget(locator)
	}
	f.handlers = make(map[string]*Handler)
	f.nodes = make(map[string]*Node)

	f.metrics.Refreshed()
	f.metrics.SetCacheSizes(0, 0)

	log.Debug().Msg("vfs: caches cleared")
}

// Stats describes the cache contents.
type Stats struct {
	Handlers int `json:"handlers"`
	Nodes    int `json:"nodes"`
}

// Stats returns the current cache sizes.
func (f *FileSystem) Stats() Stats {
	f.handlersMu.RLock()
	defer f.handlersMu.RUnlock()
	f.nodesMu.RLock()
	defer f.nodesMu.RUnlock()
	return Stats{Handlers: len(f.handlers), Nodes: len(f.nodes)}
}
