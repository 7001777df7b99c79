// Package decompiler defines the boundary to the bytecode decompiler that
// turns archive symbols into source text.
package decompiler

import "context"

// Archive is the decoded in-memory form of an archive. Its concrete type is
// owned by the Decompiler that produced it.
type Archive interface{}

// Symbol is one decompilable unit of an archive.
type Symbol struct {
	// QualifiedName is the dotted name, unique within the archive.
	QualifiedName string
	// Descriptor is opaque to callers and handed back to DecompileSymbol.
	Descriptor any
}

// Decompiler parses archives and decompiles their symbols.
//
// Implementations must be safe for concurrent use: several symbols of the same
// Archive may be decompiled at once.
type Decompiler interface {
	// ParseArchive decodes raw archive bytes.
	ParseArchive(raw []byte) (Archive, error)

	// ListSymbols returns every symbol of the archive.
	ListSymbols(a Archive) ([]Symbol, error)

	// DecompileSymbol renders one symbol as formatted source text. It returns
	// ctx.Err() when the context is cancelled before it completes.
	DecompileSymbol(ctx context.Context, a Archive, s Symbol) (string, error)
}

// Fingerprinter is implemented by decompilers whose output depends on their
// settings. Two decompilers with equal fingerprints render any symbol to the
// same text.
type Fingerprinter interface {
	Fingerprint() string
}
