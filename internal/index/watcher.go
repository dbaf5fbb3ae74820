package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/marginalia/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watcher keeps the identity index current while the vault is edited outside
// a sync pass (user renames, manual deletes, edits to the tracking property).
type Watcher struct {
	DB           *DB
	Store        storage.Provider
	Root         string
	TrackingProp string
	Logger       *slog.Logger
	OnChange     EventCallback
}

// Run processes file change events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation that drops index rows whose files
// no longer exist. Dot-directories (including the trash) are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.Root); err != nil {
		return err
	}
	w.Logger.Info("watcher: started", slog.String("root", w.Root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			w.Logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, scheduleReconcile)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	rel, err := filepath.Rel(w.Root, ev.Name)
	if err != nil || hidden(rel) {
		return
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
				w.Logger.Warn("watcher: add new dir failed", slog.String("path", rel), slog.String("error", addErr.Error()))
			}
			// Files may land in the directory before it is watched.
			scheduleReconcile()
			return
		}
	}

	if !strings.HasSuffix(rel, ".md") {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, readErr := w.Store.Read(rel)
		if readErr != nil {
			w.Logger.Debug("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return
		}
		if idxErr := indexFile(w.DB, rel, data, w.TrackingProp); idxErr != nil {
			w.Logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			return
		}
		kind := "updated"
		if ev.Op&fsnotify.Create != 0 {
			kind = "created"
		}
		w.notify(kind, rel)

	case ev.Op&fsnotify.Remove != 0:
		if delErr := w.DB.Delete(rel); delErr != nil {
			w.Logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			return
		}
		w.notify("deleted", rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as Create.
		if delErr := w.DB.Delete(rel); delErr == nil {
			w.notify("deleted", rel)
		}
		scheduleReconcile()
	}
}

func (w *Watcher) notify(kind, rel string) {
	w.Logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	if w.OnChange != nil {
		w.OnChange(kind, rel)
	}
}

// reconcile runs a full Sync, which is cheap for unchanged files.
func (w *Watcher) reconcile() {
	st, err := Sync(w.DB, w.Store, w.TrackingProp, w.Logger)
	if err != nil {
		w.Logger.Warn("reconcile: failed", slog.String("error", err.Error()))
		return
	}
	w.Logger.Debug("reconcile: done", slog.Int("indexed", st.Indexed), slog.Int("removed", st.Removed))
	if w.OnChange != nil && (st.Indexed > 0 || st.Removed > 0) {
		w.OnChange("reconciled", "")
	}
}

// hidden reports whether any element of rel starts with a dot.
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
