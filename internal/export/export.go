// Package export writes the decompiled sources of an archive to disk.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shapedtime/classfs/internal/vfs"
)

const DefaultExt = ".java"

// Options control an export.
type Options struct {
	// Ext is appended to every file name. Defaults to DefaultExt.
	Ext string
	// Workers bounds concurrent decompiles. Defaults to 4.
	Workers int
}

// Result counts what an export did.
type Result struct {
	Written int
	Failed  int
}

// Archive decompiles every symbol of the archive at locator into
// <outDir>/<package dirs>/<Class><ext>. Files are made read-only. Symbols that
// fail to decompile are logged and counted; write errors abort the export.
func Archive(ctx context.Context, fsys *vfs.FileSystem, locator, outDir string, opts Options) (Result, error) {
	if opts.Ext == "" {
		opts.Ext = DefaultExt
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	h, err := fsys.Handler(ctx, locator)
	if err != nil {
		return Result{}, err
	}

	var written, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, q := range h.Symbols() {
		g.Go(func() error {
			data, err := h.Decompile(gctx, q)
			if err != nil {
				if errors.Is(err, vfs.ErrCancelled) || gctx.Err() != nil {
					return err
				}
				log.Warn().Err(err).Str("symbol", q).Msg("export: skipping symbol")
				failed.Add(1)
				return nil
			}

			if err := writeFile(FilePath(outDir, q, opts.Ext), data); err != nil {
				return fmt.Errorf("export %s: %w", q, err)
			}
			written.Add(1)
			return nil
		})
	}

	err = g.Wait()
	res := Result{Written: int(written.Load()), Failed: int(failed.Load())}
	log.Info().
		Str("locator", locator).
		Str("dir", outDir).
		Int("written", res.Written).
		Int("failed", res.Failed).
		Msg("export: done")
	return res, err
}

// FilePath is the output file of a qualified name.
func FilePath(outDir, qualifiedName, ext string) string {
	segments := vfs.QualifiedNameToSegments(qualifiedName)
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, outDir)
	for i, s := range segments {
		s = Sanitize(s)
		if i == len(segments)-1 {
			s += ext
		}
		parts = append(parts, s)
	}
	return filepath.Join(parts...)
}

// Sanitize replaces characters that are not portable in file names.
func Sanitize(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7F:
			return '_'
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	if out == "" || out == "." || out == ".." {
		return "_" + out
	}
	return out
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// previous exports left read-only files behind
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, data, 0444)
}
