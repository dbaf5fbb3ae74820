package index

import "time"

// FileIndex defines the interface for identity index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type FileIndex interface {
	Upsert(r FileRow) error
	Delete(path string) error
	Rename(oldPath, newPath string) error
	Get(path string) (*FileRow, error)
	FindByIdentity(identity string) ([]FileRow, error)
	AllChecksums() (map[string]string, error)
	Count() (total, tracked int, err error)
	Checkpoint() (time.Time, bool, error)
	SetCheckpoint(t time.Time) error
	ClearCheckpoint() error
	Close() error
}

// Verify *DB satisfies FileIndex at compile time.
var _ FileIndex = (*DB)(nil)
