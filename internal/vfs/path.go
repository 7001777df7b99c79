package vfs

import (
	"strings"
)

const (
	// Protocol is the URL scheme of paths served by this filesystem.
	Protocol = "classfs"

	// Marker separates the archive locator from the in-archive path.
	Marker = "!/"

	separator = "/"
)

// SplitRootAndRelative splits a full path at the first archive marker into
// the archive locator and the relative symbol path.
func SplitRootAndRelative(p string) (locator, relative string, err error) {
	i := strings.Index(p, Marker)
	if i < 0 {
		return "", "", &MalformedPathError{Path: p, Reason: "missing archive marker " + Marker}
	}
	locator = p[:i]
	relative = p[i+len(Marker):]
	if locator == "" {
		return "", "", &MalformedPathError{Path: p, Reason: "empty archive locator"}
	}
	if relative == "" {
		return locator, "", nil
	}
	for _, s := range strings.Split(relative, separator) {
		if s == "" {
			return "", "", &MalformedPathError{Path: p, Reason: "empty path segment"}
		}
		// a dotted segment would alias a nested symbol
		if strings.Contains(s, ".") {
			return "", "", &MalformedPathError{Path: p, Reason: "dot in path segment " + s}
		}
	}
	return locator, relative, nil
}

// RelativePathToQualifiedName turns "com/foo/Bar" into "com.foo.Bar".
// The empty path maps to the empty name, the archive root.
func RelativePathToQualifiedName(relative string) string {
	return strings.ReplaceAll(relative, separator, ".")
}

// QualifiedNameToSegments splits a qualified name on dots. The empty name
// yields no segments.
func QualifiedNameToSegments(qualifiedName string) []string {
	if qualifiedName == "" {
		return nil
	}
	return strings.Split(qualifiedName, ".")
}

// QualifiedNameToRelativePath is the inverse of RelativePathToQualifiedName.
func QualifiedNameToRelativePath(qualifiedName string) string {
	return strings.Join(QualifiedNameToSegments(qualifiedName), separator)
}

// RootPath returns the full path of the archive root for a locator.
func RootPath(locator string) string {
	return locator + Marker
}

// JoinPath returns the full path of a relative symbol path in an archive.
func JoinPath(locator, relative string) string {
	return RootPath(locator) + relative
}

// childPath appends a segment to a node path. Root paths already end in the
// marker and take the segment directly.
func childPath(parent string, name string) string {
	if strings.HasSuffix(parent, Marker) {
		return parent + name
	}
	return parent + separator + name
}

// parentPath returns the path of the parent node and false for roots.
func parentPath(p string) (string, bool) {
	locator, relative, err := SplitRootAndRelative(p)
	if err != nil || relative == "" {
		return "", false
	}
	i := strings.LastIndex(relative, separator)
	if i < 0 {
		return RootPath(locator), true
	}
	return JoinPath(locator, relative[:i]), true
}

// URL renders a full path in the protocol form "classfs://<path>".
func URL(p string) string {
	return Protocol + "://" + p
}
