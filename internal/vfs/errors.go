package vfs

import (
	"errors"
	"fmt"
)

// Sentinel errors for filesystem operations. Typed errors below unwrap to
// these so callers can test with errors.Is.
var (
	ErrMalformedPath  = errors.New("malformed path")
	ErrArchiveParse   = errors.New("archive parse failed")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrDecompile      = errors.New("decompile failed")
	ErrCancelled      = errors.New("decompile cancelled")
	ErrNotAFile       = errors.New("not a file")
	ErrNotADirectory  = errors.New("not a directory")
	ErrReadOnly       = errors.New("read-only filesystem")
)

// MalformedPathError reports a path without the archive marker or with
// empty or dotted segments.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path %q: %s", e.Path, e.Reason)
}

func (e *MalformedPathError) Unwrap() error { return ErrMalformedPath }

// ArchiveParseError reports archive bytes that could not be decoded.
type ArchiveParseError struct {
	Locator string
	Err     error
}

func (e *ArchiveParseError) Error() string {
	return fmt.Sprintf("parse archive %s: %v", e.Locator, e.Err)
}

func (e *ArchiveParseError) Unwrap() []error { return []error{ErrArchiveParse, e.Err} }

// SymbolNotFoundError reports a qualified name that matches no symbol.
type SymbolNotFoundError struct {
	Locator       string
	QualifiedName string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found in %s", e.QualifiedName, e.Locator)
}

func (e *SymbolNotFoundError) Unwrap() error { return ErrSymbolNotFound }

// DecompileError wraps a failure of the external decompiler for one symbol.
// A cancelled decompile also unwraps to ErrCancelled.
type DecompileError struct {
	QualifiedName string
	Err           error
}

func (e *DecompileError) Error() string {
	return fmt.Sprintf("decompile %s: %v", e.QualifiedName, e.Err)
}

func (e *DecompileError) Unwrap() []error { return []error{ErrDecompile, e.Err} }

// NotAFileError is returned when bytes are requested from a directory node.
type NotAFileError struct {
	Path string
}

func (e *NotAFileError) Error() string {
	return fmt.Sprintf("%s is a directory", e.Path)
}

func (e *NotAFileError) Unwrap() error { return ErrNotAFile }

// NotADirectoryError is returned when children are requested from a class.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("%s is not a directory", e.Path)
}

func (e *NotADirectoryError) Unwrap() error { return ErrNotADirectory }

// ReadOnlyError is returned by every mutation operation.
type ReadOnlyError struct {
	Op   string
	Path string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s %s: modification is not supported", e.Op, URL(e.Path))
}

func (e *ReadOnlyError) Unwrap() error { return ErrReadOnly }
