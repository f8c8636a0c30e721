// Package storage defines the workspace file-system abstraction.
package storage

import "time"

// FileInfo describes one file under the storage root.
type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum,omitempty"`
}

// ModTimeMs returns the modification time in Unix milliseconds.
func (f FileInfo) ModTimeMs() int64 {
	return f.ModTime.UnixMilli()
}

// Provider is the interface for workspace file operations. All paths are
// relative to the provider root.
type Provider interface {
	// List returns every file under dir whose name ends in ext.
	List(dir, ext string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Stat returns size and modification time without reading the file.
	Stat(path string) (FileInfo, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute root directory.
	Root() string
}
