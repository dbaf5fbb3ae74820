package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/parser"
	"github.com/starford/marginalia/internal/storage"
)

// Stats summarizes one reconciliation pass.
type Stats struct {
	Scanned int
	Indexed int
	Removed int
}

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted with their identity
//   - files removed from disk are deleted from the index
//
// When the tracking property differs from the one used last time every file
// is re-read, because stored identities were taken from the old key.
func Sync(db *DB, store storage.Provider, trackingProp string, logger *slog.Logger) (Stats, error) {
	var st Stats
	metas, err := store.List("")
	if err != nil {
		return st, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return st, err
	}

	prev, _, err := db.getState(keyTrackingProperty)
	if err != nil {
		return st, err
	}
	rescan := prev != trackingProp
	if rescan {
		logger.Info("sync: tracking property changed, re-reading vault",
			slog.String("from", prev), slog.String("to", trackingProp))
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		st.Scanned++
		disk[m.Path] = struct{}{}

		if !rescan && checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data, trackingProp); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			st.Indexed++
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.Delete(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				st.Removed++
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	if rescan {
		if err := db.setState(keyTrackingProperty, trackingProp); err != nil {
			return st, err
		}
	}
	return st, nil
}

// IndexContent records a file whose content the caller already holds.
func IndexContent(db *DB, path string, data []byte, trackingProp string) error {
	return indexFile(db, path, data, trackingProp)
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, path string, data []byte, trackingProp string) error {
	res, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return db.Upsert(FileRow{
		Path:     path,
		Identity: res.Identity(trackingProp),
		Title:    res.Title,
		Checksum: checksum.Sum(data),
	})
}
