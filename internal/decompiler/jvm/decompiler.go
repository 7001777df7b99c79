// Package jvm decompiles Java class files into declaration-level source
// outlines.
package jvm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/archive"
	"github.com/shapedtime/classfs/internal/decompiler"
)

const classSuffix = ".class"

// outlineVersion changes whenever the printer output changes for a given
// Format.
const outlineVersion = 1

// Archive is a container whose class entries have been read into memory.
type Archive struct {
	Format  archive.Format
	entries map[string]*classEntry
}

type classEntry struct {
	path string
	data []byte
}

// Decompiler implements decompiler.Decompiler for JVM archives.
type Decompiler struct {
	format Format
}

var (
	_ decompiler.Decompiler    = (*Decompiler)(nil)
	_ decompiler.Fingerprinter = (*Decompiler)(nil)
)

// New returns a Decompiler printing with f.
func New(f Format) *Decompiler {
	return &Decompiler{format: f}
}

// Fingerprint identifies the printer version and format.
func (d *Decompiler) Fingerprint() string {
	id := fmt.Sprintf("jvm/%d indent=%q header=%t sort=%t",
		outlineVersion, d.format.Indent, d.format.Header, d.format.SortMembers)
	return digest.FromString(id).Encoded()[:16]
}

// ParseArchive reads every class entry of a zip, 7z or rar container.
func (d *Decompiler) ParseArchive(raw []byte) (decompiler.Archive, error) {
	format, entries, err := archive.Read(raw, func(name string) bool {
		return strings.HasSuffix(name, classSuffix)
	})
	if err != nil {
		return nil, err
	}

	a := &Archive{Format: format, entries: make(map[string]*classEntry, len(entries))}
	for _, e := range entries {
		q, ok := QualifiedName(e.Name)
		if !ok {
			log.Debug().Str("entry", e.Name).Msg("jvm: skipping entry without a class name")
			continue
		}
		if _, dup := a.entries[q]; dup {
			return nil, fmt.Errorf("duplicate class entry %q", e.Name)
		}
		a.entries[q] = &classEntry{path: e.Name, data: e.Data}
	}
	return a, nil
}

// ListSymbols returns the classes of a, sorted by qualified name.
func (d *Decompiler) ListSymbols(a decompiler.Archive) ([]decompiler.Symbol, error) {
	ja, ok := a.(*Archive)
	if !ok {
		return nil, fmt.Errorf("jvm: unexpected archive type %T", a)
	}

	symbols := make([]decompiler.Symbol, 0, len(ja.entries))
	for q, e := range ja.entries {
		symbols = append(symbols, decompiler.Symbol{QualifiedName: q, Descriptor: e})
	}
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].QualifiedName < symbols[j].QualifiedName
	})
	return symbols, nil
}

// DecompileSymbol parses the class behind s and prints its outline.
func (d *Decompiler) DecompileSymbol(ctx context.Context, a decompiler.Archive, s decompiler.Symbol) (string, error) {
	e, ok := s.Descriptor.(*classEntry)
	if !ok {
		return "", fmt.Errorf("jvm: unexpected symbol descriptor %T", s.Descriptor)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cf, err := ParseClassFile(e.data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", e.path, err)
	}
	return Print(ctx, cf, d.format)
}

// QualifiedName maps a class entry path (com/foo/Bar.class) to its dotted
// name (com.foo.Bar). Module descriptors and paths with empty or dotted
// segments have no qualified name.
func QualifiedName(entry string) (string, bool) {
	rel, ok := strings.CutSuffix(entry, classSuffix)
	if !ok || rel == "" {
		return "", false
	}

	segments := strings.Split(rel, "/")
	for _, s := range segments {
		if s == "" || strings.Contains(s, ".") {
			return "", false
		}
	}
	if segments[len(segments)-1] == "module-info" {
		return "", false
	}
	return strings.Join(segments, "."), true
}
