// Package archive reads the entries of ZIP/JAR, 7-Zip and RAR containers
// held in memory.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zip"
	"github.com/nwaples/rardecode/v2"
)

var (
	// ErrUnknownFormat is returned for bytes that are no supported container.
	ErrUnknownFormat = errors.New("unknown archive format")
	// ErrTooLarge is returned when extraction would exceed its Limits.
	ErrTooLarge = errors.New("archive content too large")
)

// Limits bounds the bytes extracted from one container.
type Limits struct {
	MaxEntrySize int64
	MaxTotalSize int64
}

// DefaultLimits is what Read extracts with.
var DefaultLimits = Limits{
	MaxEntrySize: 64 << 20,
	MaxTotalSize: 512 << 20,
}

// Format identifies a container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatSevenZip
	FormatRar
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatSevenZip:
		return "7z"
	case FormatRar:
		return "rar"
	default:
		return "unknown"
	}
}

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	sevenZipMagic = []byte("7z\xBC\xAF\x27\x1C")
	rarMagic      = []byte("Rar!\x1A\x07")
)

// Detect identifies the container format from its leading bytes.
func Detect(raw []byte) Format {
	switch {
	case bytes.HasPrefix(raw, zipMagic), bytes.HasPrefix(raw, zipEmptyMagic):
		return FormatZip
	case bytes.HasPrefix(raw, sevenZipMagic):
		return FormatSevenZip
	case bytes.HasPrefix(raw, rarMagic):
		return FormatRar
	default:
		return FormatUnknown
	}
}

// Entry is one regular file of a container.
type Entry struct {
	Name string
	Data []byte
}

// Filter selects which entries are extracted. A nil Filter keeps everything.
type Filter func(name string) bool

// Read extracts the regular files of the container in raw that pass keep.
// Names use forward slashes without a leading slash.
func Read(raw []byte, keep Filter) (Format, []Entry, error) {
	return ReadLimited(raw, keep, DefaultLimits)
}

// ReadLimited is Read with explicit limits. Exceeding either limit fails the
// whole container with ErrTooLarge.
func ReadLimited(raw []byte, keep Filter, limits Limits) (Format, []Entry, error) {
	if keep == nil {
		keep = func(string) bool { return true }
	}
	x := &extractor{limits: limits}

	format := Detect(raw)
	var (
		entries []Entry
		err     error
	)
	switch format {
	case FormatZip:
		entries, err = readZip(raw, keep, x)
	case FormatSevenZip:
		entries, err = readSevenZip(raw, keep, x)
	case FormatRar:
		entries, err = readRar(raw, keep, x)
	default:
		return format, nil, ErrUnknownFormat
	}
	if err != nil {
		return format, nil, fmt.Errorf("%s: %w", format, err)
	}
	return format, entries, nil
}

// NormalizeName converts a container entry name to a slash-separated
// relative path.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(name, "/")
}

func readZip(raw []byte, keep Filter, x *extractor) ([]Entry, error) {
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := NormalizeName(f.Name)
		if !keep(name) {
			continue
		}
		data, err := x.open(f.Open)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Entry{Name: name, Data: data})
	}
	return out, nil
}

func readSevenZip(raw []byte, keep Filter, x *extractor) ([]Entry, error) {
	r, err := sevenzip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := NormalizeName(f.Name)
		if !keep(name) {
			continue
		}
		data, err := x.open(f.Open)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Entry{Name: name, Data: data})
	}
	return out, nil
}

func readRar(raw []byte, keep Filter, x *extractor) ([]Entry, error) {
	r, err := rardecode.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.IsDir {
			continue
		}
		name := NormalizeName(hdr.Name)
		if !keep(name) {
			continue
		}
		data, err := x.read(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Entry{Name: name, Data: data})
	}
	return out, nil
}

// extractor reads entry contents and keeps the running total.
type extractor struct {
	limits Limits
	total  int64
}

func (x *extractor) open(open func() (io.ReadCloser, error)) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return x.read(rc)
}

func (x *extractor) read(r io.Reader) ([]byte, error) {
	limit := x.limits.MaxEntrySize
	if left := x.limits.MaxTotalSize - x.total; left < limit {
		limit = left
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)
	}
	x.total += int64(len(data))
	return data, nil
}
