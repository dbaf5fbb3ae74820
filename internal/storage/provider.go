// Package storage defines the vault file-system abstraction.
package storage

import "time"

// FileMeta describes one Markdown file found in the vault.
type FileMeta struct {
	Path     string
	Checksum string
	ModTime  time.Time
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir, skipping dot-directories.
	List(dir string) ([]FileMeta, error)
	// Exists reports whether a file occupies path. The final path element is
	// compared case-insensitively.
	Exists(path string) (bool, error)
	// Resolve is Exists that also returns the occupying file's actual path.
	Resolve(path string) (actual string, ok bool, err error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Create writes a new file and fails with fs.ErrExist if path is taken.
	Create(path string, content []byte) error
	// Write atomically replaces (or creates) the file at path.
	Write(path string, content []byte) error
	// Process atomically rewrites the file at path with fn's output. Output
	// identical to the input is not written.
	Process(path string, fn func([]byte) ([]byte, error)) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Trash soft-deletes the file at path; it can be restored from the trash folder.
	Trash(path string) error
	// SetModTime sets the file's modification time.
	SetModTime(path string, t time.Time) error
}
