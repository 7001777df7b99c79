package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/shapedtime/classfs/internal/decompiler"
	"github.com/shapedtime/classfs/internal/metrics"
)

// ContentStore persists decompiled sources across handler lifetimes. Keys
// embed the archive digest and the decompiler fingerprint, so an entry can
// never outlive the bytes or the settings it was produced from.
type ContentStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
}

// Handler owns one parsed archive and its symbol table. The table is built
// once at construction and never changes afterwards.
type Handler struct {
	locator  string
	digest   digest.Digest
	parsedAt time.Time

	dec     decompiler.Decompiler
	archive decompiler.Archive

	names   []string // sorted qualified names
	symbols map[string]decompiler.Symbol

	flights     singleflight.Group
	fingerprint string
	store       ContentStore
	metrics     *metrics.Metrics
}

// NewHandler decodes raw archive bytes and extracts the symbol table.
func NewHandler(locator string, raw []byte, dec decompiler.Decompiler) (*Handler, error) {
	a, err := dec.ParseArchive(raw)
	if err != nil {
		return nil, &ArchiveParseError{Locator: locator, Err: err}
	}

	symbols, err := dec.ListSymbols(a)
	if err != nil {
		return nil, &ArchiveParseError{Locator: locator, Err: err}
	}

	h := &Handler{
		locator:  locator,
		digest:   digest.FromBytes(raw),
		parsedAt: time.Now(),
		dec:      dec,
		archive:  a,
		names:    make([]string, 0, len(symbols)),
		symbols:  make(map[string]decompiler.Symbol, len(symbols)),
	}
	if fp, ok := dec.(decompiler.Fingerprinter); ok {
		h.fingerprint = fp.Fingerprint()
	}

	for _, s := range symbols {
		if !validQualifiedName(s.QualifiedName) {
			log.Debug().
				Str("locator", locator).
				Str("name", s.QualifiedName).
				Msg("vfs: skipping symbol with invalid name")
			continue
		}
		if _, dup := h.symbols[s.QualifiedName]; dup {
			return nil, &ArchiveParseError{
				Locator: locator,
				Err:     fmt.Errorf("duplicate symbol %q", s.QualifiedName),
			}
		}
		h.symbols[s.QualifiedName] = s
		h.names = append(h.names, s.QualifiedName)
	}
	sort.Strings(h.names)

	log.Debug().
		Str("locator", locator).
		Str("digest", h.digest.String()).
		Int("symbols", len(h.names)).
		Msg("vfs: archive parsed")

	return h, nil
}

func validQualifiedName(q string) bool {
	if q == "" || strings.Contains(q, separator) {
		return false
	}
	for _, s := range strings.Split(q, ".") {
		if s == "" {
			return false
		}
	}
	return true
}

// Locator returns the archive locator this handler was built for.
func (h *Handler) Locator() string { return h.locator }

// Digest returns the digest of the archive bytes.
func (h *Handler) Digest() digest.Digest { return h.digest }

// ParsedAt returns when the archive was parsed.
func (h *Handler) ParsedAt() time.Time { return h.parsedAt }

// Symbols returns all qualified names in sorted order.
func (h *Handler) Symbols() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// hasPrefix reports whether some symbol name starts with prefix.
func (h *Handler) hasPrefix(prefix string) bool {
	i := sort.SearchStrings(h.names, prefix)
	return i < len(h.names) && strings.HasPrefix(h.names[i], prefix)
}

// IsClass reports whether qualifiedName is exactly a symbol.
func (h *Handler) IsClass(qualifiedName string) bool {
	_, ok := h.symbols[qualifiedName]
	return ok
}

// IsPackage reports whether qualifiedName is a strict dotted prefix of some
// symbol. The root (empty name) is always a package.
func (h *Handler) IsPackage(qualifiedName string) bool {
	if qualifiedName == "" {
		return true
	}
	return h.hasPrefix(qualifiedName + ".")
}

// Exists reports whether qualifiedName names a symbol or a package.
func (h *Handler) Exists(qualifiedName string) bool {
	return h.IsClass(qualifiedName) || h.IsPackage(qualifiedName)
}

// ListChildren returns the distinct next segments below qualifiedName:
// immediate sub-packages and classes, sorted.
func (h *Handler) ListChildren(qualifiedName string) []string {
	prefix := ""
	if qualifiedName != "" {
		prefix = qualifiedName + "."
	}

	seen := make(map[string]struct{})
	for i := sort.SearchStrings(h.names, prefix); i < len(h.names); i++ {
		name := h.names[i]
		if !strings.HasPrefix(name, prefix) {
			break
		}
		rest := name[len(prefix):]
		if j := strings.IndexByte(rest, '.'); j >= 0 {
			rest = rest[:j]
		}
		if rest != "" {
			seen[rest] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Decompile returns the source text of the symbol named qualifiedName.
//
// Concurrent calls for the same symbol share one decompile. A caller whose
// context ends stops waiting and gets ErrCancelled; the shared work is only
// interrupted when the caller that started it cancels, in which case other
// waiters retry.
func (h *Handler) Decompile(ctx context.Context, qualifiedName string) ([]byte, error) {
	sym, ok := h.symbols[qualifiedName]
	if !ok {
		return nil, &SymbolNotFoundError{Locator: h.locator, QualifiedName: qualifiedName}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(qualifiedName, err)
		}

		ch := h.flights.DoChan(qualifiedName, func() (interface{}, error) {
			return h.decompile(ctx, sym)
		})

		select {
		case <-ctx.Done():
			return nil, cancelled(qualifiedName, ctx.Err())
		case r := <-ch:
			if r.Err != nil {
				if errors.Is(r.Err, ErrCancelled) && ctx.Err() == nil {
					// Another caller's cancellation ended the shared flight.
					continue
				}
				return nil, r.Err
			}
			b := r.Val.([]byte)
			if r.Shared {
				b = bytes.Clone(b)
			}
			return b, nil
		}
	}
}

func (h *Handler) decompile(ctx context.Context, sym decompiler.Symbol) ([]byte, error) {
	key := h.storeKey(sym.QualifiedName)
	if h.store != nil {
		data, ok, err := h.store.Get(key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("vfs: content store read failed")
		} else if ok {
			h.metrics.StoreHit()
			return data, nil
		}
	}

	start := time.Now()
	text, err := h.dec.DecompileSymbol(ctx, h.archive, sym)
	isCancel := err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
	h.metrics.ObserveDecompile(time.Since(start), err, isCancel)
	if isCancel {
		return nil, cancelled(sym.QualifiedName, err)
	}
	if err != nil {
		log.Debug().
			Err(err).
			Str("locator", h.locator).
			Str("name", sym.QualifiedName).
			Msg("vfs: decompile failed")
		return nil, &DecompileError{QualifiedName: sym.QualifiedName, Err: err}
	}

	data := []byte(text)
	if h.store != nil {
		if err := h.store.Put(key, data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("vfs: content store write failed")
		}
	}
	return data, nil
}

// storeKey is <archive digest>/[<fingerprint>/]<qualified name>.
func (h *Handler) storeKey(qualifiedName string) string {
	if h.fingerprint == "" {
		return h.digest.String() + "/" + qualifiedName
	}
	return h.digest.String() + "/" + h.fingerprint + "/" + qualifiedName
}

func cancelled(qualifiedName string, cause error) error {
	return &DecompileError{QualifiedName: qualifiedName, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
}
