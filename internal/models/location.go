package models

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Location schemes.
const (
	SchemeFile     = "file"
	SchemeUntitled = "untitled"
)

// Location identifies the resource backing a notebook. File paths are
// relative to the workspace root and slash separated.
type Location struct {
	Scheme string `json:"scheme"`
	Path   string `json:"path"`
}

// FileLocation returns a file-backed location.
func FileLocation(p string) Location {
	return Location{Scheme: SchemeFile, Path: p}
}

// UntitledLocation returns a location for a notebook not yet backed by a file.
func UntitledLocation(name string) Location {
	return Location{Scheme: SchemeUntitled, Path: name}
}

// ParseLocation accepts "untitled:Name", "file:rel/path" or a bare relative path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("location is empty")
	}
	scheme, rest, found := strings.Cut(raw, ":")
	if !found {
		return FileLocation(raw).normalized(), nil
	}
	switch scheme {
	case SchemeFile, SchemeUntitled:
		if rest == "" {
			return Location{}, fmt.Errorf("location %q has no path", raw)
		}
		return Location{Scheme: scheme, Path: rest}.normalized(), nil
	default:
		return Location{}, fmt.Errorf("unsupported location scheme %q", scheme)
	}
}

// IsUntitled reports whether the notebook has never been saved to a file.
func (l Location) IsUntitled() bool {
	return l.Scheme == SchemeUntitled
}

// IsFile reports whether the location names a real file.
func (l Location) IsFile() bool {
	return l.Scheme == SchemeFile
}

// String returns the canonical form "scheme:path". It is stable across
// processes and is what recovery keys are derived from.
func (l Location) String() string {
	n := l.normalized()
	return n.Scheme + ":" + n.Path
}

func (l Location) normalized() Location {
	p := norm.NFC.String(strings.ReplaceAll(l.Path, "\\", "/"))
	if l.Scheme == SchemeFile {
		p = strings.TrimPrefix(path.Clean("/"+p), "/")
	}
	scheme := l.Scheme
	if scheme == "" {
		scheme = SchemeFile
	}
	return Location{Scheme: scheme, Path: p}
}
