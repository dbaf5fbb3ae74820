package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/marginalia/internal/apperr"
)

// FileRow represents a row in the files table.
type FileRow struct {
	Path      string
	Identity  string
	Title     string
	Checksum  string
	UpdatedAt time.Time
}

const (
	keyCheckpoint       = "checkpoint"
	keyTrackingProperty = "tracking_property"
)

// Upsert inserts or replaces a file row.
func (db *DB) Upsert(r FileRow) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO files (path, identity, title, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			identity   = excluded.identity,
			title      = excluded.title,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, r.Path, r.Identity, r.Title, r.Checksum, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}
	return nil
}

// Delete removes a file row. Missing rows are not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return nil
}

// Rename moves a row to a new path inside a transaction.
func (db *DB) Rename(oldPath, newPath string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, newPath)
	if _, err := tx.Exec(`UPDATE files SET path = ? WHERE path = ?`, newPath, oldPath); err != nil {
		return fmt.Errorf("index: rename file: %w", err)
	}
	return tx.Commit()
}

// Get returns the row for path or apperr.ErrNotFound.
func (db *DB) Get(path string) (*FileRow, error) {
	var r FileRow
	err := db.conn.QueryRow(`SELECT path, identity, title, checksum, updated_at FROM files WHERE path = ?`, path).
		Scan(&r.Path, &r.Identity, &r.Title, &r.Checksum, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get file: %w", err)
	}
	return &r, nil
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path -> checksum for every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// FindByIdentity returns the files whose tracking property equals identity,
// ordered by path so the primary choice is stable across runs.
func (db *DB) FindByIdentity(identity string) ([]FileRow, error) {
	if identity == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT path, identity, title, checksum, updated_at
		FROM files WHERE identity = ? ORDER BY path`, identity)
	if err != nil {
		return nil, fmt.Errorf("index: find by identity: %w", err)
	}
	return scanFiles(rows)
}

// List returns a page of indexed files ordered by path, optionally limited
// to paths under prefix, with the total number of matching rows.
func (db *DB) List(limit, offset int, prefix string) ([]FileRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	like := escapeLike(prefix) + "%"

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files WHERE path LIKE ? ESCAPE '\'`, like).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: list count: %w", err)
	}
	rows, err := db.conn.Query(`
		SELECT path, identity, title, checksum, updated_at
		FROM files WHERE path LIKE ? ESCAPE '\'
		ORDER BY path LIMIT ? OFFSET ?`, like, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list: %w", err)
	}
	out, err := scanFiles(rows)
	return out, total, err
}

func scanFiles(rows *sql.Rows) ([]FileRow, error) {
	defer rows.Close()
	var out []FileRow
	for rows.Next() {
		var r FileRow
		if err := rows.Scan(&r.Path, &r.Identity, &r.Title, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

// Count returns the number of indexed files and how many carry an identity.
func (db *DB) Count() (total, tracked int, err error) {
	err = db.conn.QueryRow(`SELECT count(*), count(NULLIF(identity, '')) FROM files`).Scan(&total, &tracked)
	if err != nil {
		return 0, 0, fmt.Errorf("index: count: %w", err)
	}
	return total, tracked, nil
}

// Checkpoint returns the persisted checkpoint. ok is false when none exists.
func (db *DB) Checkpoint() (t time.Time, ok bool, err error) {
	v, ok, err := db.getState(keyCheckpoint)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("index: parse checkpoint %q: %w", v, err)
	}
	return t, true, nil
}

// SetCheckpoint persists t as the new checkpoint.
func (db *DB) SetCheckpoint(t time.Time) error {
	return db.setState(keyCheckpoint, t.UTC().Format(time.RFC3339))
}

// ClearCheckpoint forgets the checkpoint so the next pass is a full fetch.
func (db *DB) ClearCheckpoint() error {
	if _, err := db.conn.Exec(`DELETE FROM state WHERE key = ?`, keyCheckpoint); err != nil {
		return fmt.Errorf("index: clear checkpoint: %w", err)
	}
	return nil
}

func (db *DB) getState(key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("index: get state %s: %w", key, err)
	}
	return v, true, nil
}

func (db *DB) setState(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("index: set state %s: %w", key, err)
	}
	return nil
}
