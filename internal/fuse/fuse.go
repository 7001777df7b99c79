// Package fuse mounts the archive tree through cgofuse. Builds without the
// fuse tag carry a stand-in whose Mount returns ErrUnavailable.
package fuse

import "errors"

// ErrUnavailable is returned by Mount when FUSE support is not compiled in.
var ErrUnavailable = errors.New("fuse support not compiled in, rebuild with -tags=fuse")
