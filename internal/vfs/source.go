package vfs

import (
	"context"
	"os"
	"strings"
)

// Source supplies the raw bytes of an archive for a locator.
type Source interface {
	ReadArchive(ctx context.Context, locator string) ([]byte, error)
}

// LocalSource reads archives from the local filesystem. Locators are plain
// paths or file:// URLs.
type LocalSource struct{}

var _ Source = LocalSource{}

func (LocalSource) ReadArchive(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(strings.TrimPrefix(locator, "file://"))
}

// ChangeKind classifies a change of an archive's real file.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota
	ChangeDeleted
	ChangeMoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	case ChangeMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// ChangeEvent notifies that the archive behind Locator changed.
type ChangeEvent struct {
	Locator string
	Kind    ChangeKind
}

// ChangeNotifier delivers change events for watched archive locators.
type ChangeNotifier interface {
	Subscribe(fn func(ChangeEvent))
	Watch(locator string) error
}
