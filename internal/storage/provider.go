// Package storage performs the file-system side of note operations. Paths
// handed to a Provider are absolute and must already be sandboxed.
package storage

import "io/fs"

// VisitFunc is called with the slash-separated path (relative to the tree
// root) of each file a tree operation has handled.
type VisitFunc func(rel string) error

// Provider is the interface for note file operations.
type Provider interface {
	// Stat returns file info for path without following a final symlink.
	Stat(path string) (fs.FileInfo, error)
	// Read returns the raw bytes of the regular file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the regular file at path.
	Delete(path string) error
	// Mkdir creates the directory at path and any missing parents.
	Mkdir(path string) error
	// RemoveTree deletes every file below dir one at a time, then the directories.
	RemoveTree(dir string, fn VisitFunc) error
	// CopyTree duplicates src into dst, which must not exist.
	CopyTree(src, dst string, fn VisitFunc) error
	// ListFiles returns the relative paths of all non-hidden files below dir
	// whose names end with ext (all files when ext is empty).
	ListFiles(dir, ext string) ([]string, error)
}
