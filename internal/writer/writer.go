// Package writer turns a batch of rendered documents into vault files,
// deciding per path group whether to create, update, rename, flag or trash.
package writer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/frontmatter"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/parser"
	"github.com/starford/marginalia/internal/storage"
)

// DuplicateKey is merged into the frontmatter of stale duplicates that are
// kept rather than trashed.
const DuplicateKey = "duplicate"

const (
	ext              = ".md"
	fallbackCategory = "Uncategorized"
	// maxNameBytes is NAME_MAX on common filesystems.
	maxNameBytes = 255
)

// Action names reported to the Observer.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
	ActionRenamed   = "renamed"
	ActionFlagged   = "flagged"
	ActionTrashed   = "trashed"
	ActionFailed    = "failed"
)

// RenderedFile is one document ready to be written.
type RenderedFile struct {
	Basename    string
	Doc         *models.DisplayDocument
	Frontmatter *frontmatter.Frontmatter
	Contents    string
}

// Index is the identity lookup the writer keeps current.
type Index interface {
	FindByIdentity(identity string) ([]index.FileRow, error)
	Upsert(r index.FileRow) error
	Rename(oldPath, newPath string) error
	Delete(path string) error
}

// Observer receives one call per file action.
type Observer interface {
	ObserveFileAction(action string)
}

// ProgressFunc is called after every processed file. It may be called from
// several goroutines when Concurrency > 1.
type ProgressFunc func(done, total int)

// Options configures a Writer.
type Options struct {
	BaseFolder string
	// TrackingProperty selects the tracked regime when non-empty.
	TrackingProperty string
	ProtectedFields  []string
	DeleteDuplicates bool
	SetFileTimes     bool
	// Concurrency is the number of path groups processed in parallel.
	Concurrency int
}

// Report summarizes one Process call.
type Report struct {
	Created   int
	Updated   int
	Unchanged int
	Renamed   int
	Flagged   int
	Trashed   int
	Failures  []*apperr.WriteError
}

// Writer is the deduplicating file writer.
type Writer struct {
	store    storage.Provider
	idx      Index
	opts     Options
	logger   *slog.Logger
	observer Observer
	progress ProgressFunc

	mu     sync.Mutex
	report Report
}

// New creates a Writer.
func New(store storage.Provider, idx Index, opts Options, logger *slog.Logger) *Writer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Writer{store: store, idx: idx, opts: opts, logger: logger}
}

// SetObserver installs an action observer.
func (w *Writer) SetObserver(o Observer) { w.observer = o }

// SetProgress installs a progress callback.
func (w *Writer) SetProgress(fn ProgressFunc) { w.progress = fn }

// Path returns the vault path of a rendered file.
func (w *Writer) Path(rf RenderedFile) string {
	return path.Join(w.opts.BaseFolder, CategoryFolder(rf.Doc.Category), rf.Basename+ext)
}

// CategoryFolder title-cases a remote category for use as a folder name.
func CategoryFolder(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return fallbackCategory
	}
	r, size := utf8.DecodeRuneInString(category)
	return string(unicode.ToUpper(r)) + category[size:]
}

// Process writes the whole batch. Files are grouped by case-folded path; each
// group is resolved sequentially and independent groups may run in parallel.
// Per-file failures are logged and collected; they never stop the batch.
func (w *Writer) Process(ctx context.Context, files []RenderedFile) Report {
	w.mu.Lock()
	w.report = Report{}
	w.mu.Unlock()

	groups := make(map[string][]int)
	for i, rf := range files {
		key := strings.ToLower(w.Path(rf))
		groups[key] = append(groups[key], i)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := len(files)
	var done atomic.Int64
	step := func() {
		n := int(done.Add(1))
		if w.progress != nil {
			w.progress(n, total)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, k := range keys {
		members := groups[k]
		g.Go(func() error {
			for n, i := range members {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.processOne(files[i], n)
				step()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.Warn("writer: batch interrupted", slog.String("error", err.Error()))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	sort.Slice(w.report.Failures, func(i, j int) bool { return w.report.Failures[i].Path < w.report.Failures[j].Path })
	return w.report
}

// processOne handles the n-th member of a path group.
func (w *Writer) processOne(rf RenderedFile, n int) {
	target := w.Path(rf)
	if w.opts.TrackingProperty == "" {
		dest := target
		if n > 0 {
			dest = w.suffixed(target, rf)
		}
		w.upsertAt(rf, dest)
		return
	}
	if rf.Doc.Identity() == "" {
		// Nothing to look up by; fall back to the path.
		w.upsertAt(rf, target)
		return
	}
	w.processTracked(rf, target)
}

// errStale marks an index row whose file no longer exists.
var errStale = errors.New("stale index row")

// processTracked resolves one document by identity.
func (w *Writer) processTracked(rf RenderedFile, target string) {
	identity := rf.Doc.Identity()
	for {
		matches, err := w.idx.FindByIdentity(identity)
		if err != nil {
			w.fail(rf, "lookup", target, err)
			return
		}
		if len(matches) == 0 {
			w.createFresh(rf, target)
			return
		}

		primary := pickPrimary(matches, target, w.suffixed(target, rf))
		err = w.updatePrimary(rf, primary, target)
		if errors.Is(err, errStale) {
			// The file vanished since the index was built; forget it and retry.
			if err := w.idx.Delete(primary.Path); err != nil {
				w.fail(rf, "lookup", primary.Path, err)
				return
			}
			continue
		}
		if err != nil {
			return
		}
		for _, m := range matches {
			if m.Path == primary.Path {
				continue
			}
			w.handleDuplicate(rf, m.Path)
		}
		return
	}
}

// pickPrimary prefers a match already sitting at the target (or its suffixed
// variant) so repeated passes choose the same file.
func pickPrimary(matches []index.FileRow, target, suffixed string) index.FileRow {
	for _, want := range []string{target, suffixed} {
		for _, m := range matches {
			if strings.EqualFold(m.Path, want) {
				return m
			}
		}
	}
	return matches[0]
}

// createFresh writes a tracked document that has no file yet. An occupied
// target belongs to someone else, so the suffixed name is used instead.
func (w *Writer) createFresh(rf RenderedFile, target string) {
	dest := target
	_, ok, err := w.store.Resolve(target)
	if err != nil {
		w.fail(rf, "resolve", target, err)
		return
	}
	if ok {
		dest = w.suffixed(target, rf)
		w.logger.Info("writer: target occupied by untracked file, using suffixed name",
			slog.String("path", target), slog.String("dest", dest))
		if _, taken, err := w.store.Resolve(dest); err != nil {
			w.fail(rf, "resolve", dest, err)
			return
		} else if taken {
			w.fail(rf, "create", dest, apperr.ErrAlreadyExists)
			return
		}
	}
	w.create(rf, dest)
}

// updatePrimary merges into the primary match and moves it to its computed
// path when the basename changed.
func (w *Writer) updatePrimary(rf RenderedFile, primary index.FileRow, target string) error {
	dest := primary.Path
	if primary.Path != target {
		dest = target
		if !strings.EqualFold(primary.Path, target) {
			_, taken, err := w.store.Resolve(target)
			if err != nil {
				w.fail(rf, "resolve", target, err)
				return err
			}
			if taken {
				dest = w.suffixed(target, rf)
			}
		}
	}

	text, changed, err := w.merge(rf, primary.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errStale
		}
		w.fail(rf, "update", primary.Path, err)
		return err
	}

	action := ActionUnchanged
	if changed {
		action = ActionUpdated
	}
	if dest != primary.Path {
		if !strings.EqualFold(dest, primary.Path) {
			if _, taken, err := w.store.Resolve(dest); err != nil {
				w.fail(rf, "resolve", dest, err)
				return err
			} else if taken {
				w.fail(rf, "rename", dest, apperr.ErrAlreadyExists)
				return apperr.ErrAlreadyExists
			}
		}
		if err := w.store.Move(primary.Path, dest); err != nil {
			w.fail(rf, "rename", primary.Path, err)
			return err
		}
		if err := w.idx.Rename(primary.Path, dest); err != nil {
			w.logger.Warn("writer: index rename failed", slog.String("path", dest), slog.String("error", err.Error()))
		}
		w.logger.Info("writer: renamed", slog.String("from", primary.Path), slog.String("to", dest))
		action = ActionRenamed
		changed = true
	}

	w.finish(rf, dest, text, changed)
	w.record(action)
	return nil
}

// handleDuplicate applies the duplicate policy to a stale copy.
func (w *Writer) handleDuplicate(rf RenderedFile, p string) {
	if w.opts.DeleteDuplicates {
		if err := w.store.Trash(p); err != nil {
			w.fail(rf, "trash", p, err)
			return
		}
		if err := w.idx.Delete(p); err != nil {
			w.logger.Warn("writer: index delete failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		w.logger.Info("writer: trashed duplicate", slog.String("path", p), slog.String("identity", rf.Doc.Identity()))
		w.record(ActionTrashed)
		return
	}

	var final []byte
	changed := false
	err := w.store.Process(p, func(data []byte) ([]byte, error) {
		res, err := parser.Parse(data)
		if err != nil {
			return nil, err
		}
		fm := res.Frontmatter.Clone()
		if err := fm.Set(DuplicateKey, true); err != nil {
			return nil, err
		}
		text, err := frontmatter.Compose(fm, res.Body)
		if err != nil {
			return nil, err
		}
		final = []byte(text)
		changed = text != string(data)
		return final, nil
	})
	if err != nil {
		w.fail(rf, "flag", p, err)
		return
	}
	w.reindex(rf, p, final)
	if changed {
		w.logger.Info("writer: flagged duplicate", slog.String("path", p), slog.String("identity", rf.Doc.Identity()))
		w.record(ActionFlagged)
	} else {
		w.record(ActionUnchanged)
	}
}

// upsertAt writes rf at dest, merging into an existing file there.
func (w *Writer) upsertAt(rf RenderedFile, dest string) {
	actual, ok, err := w.store.Resolve(dest)
	if err != nil {
		w.fail(rf, "resolve", dest, err)
		return
	}
	if !ok {
		w.create(rf, dest)
		return
	}
	text, changed, err := w.merge(rf, actual)
	if err != nil {
		w.fail(rf, "update", actual, err)
		return
	}
	action := ActionUnchanged
	if changed {
		action = ActionUpdated
	}
	if actual != dest {
		if err := w.store.Move(actual, dest); err != nil {
			w.fail(rf, "rename", actual, err)
			return
		}
		if err := w.idx.Delete(actual); err != nil {
			w.logger.Warn("writer: index delete failed", slog.String("path", actual), slog.String("error", err.Error()))
		}
		action = ActionRenamed
		changed = true
	}
	w.finish(rf, dest, text, changed)
	w.record(action)
}

// merge rewrites the file at p with rf's frontmatter merged over the existing
// one and rf's body. It returns the final text and whether it changed.
func (w *Writer) merge(rf RenderedFile, p string) (string, bool, error) {
	var text string
	var changed bool
	err := w.store.Process(p, func(data []byte) ([]byte, error) {
		res, err := parser.Parse(data)
		if err != nil {
			return nil, err
		}
		merged := frontmatter.MergeInto(res.Frontmatter, rf.Frontmatter, w.opts.ProtectedFields)
		if !rf.Frontmatter.Has(DuplicateKey) {
			merged.Delete(DuplicateKey)
		}
		text, err = frontmatter.Compose(merged, rf.Contents)
		if err != nil {
			return nil, err
		}
		changed = text != string(data)
		return []byte(text), nil
	})
	return text, changed, err
}

// create writes a new file at dest.
func (w *Writer) create(rf RenderedFile, dest string) {
	text, err := frontmatter.Compose(rf.Frontmatter, rf.Contents)
	if err != nil {
		w.fail(rf, "create", dest, err)
		return
	}
	if err := w.store.Create(dest, []byte(text)); err != nil {
		w.fail(rf, "create", dest, err)
		return
	}
	w.logger.Debug("writer: created", slog.String("path", dest))
	w.finish(rf, dest, text, true)
	w.record(ActionCreated)
}

// finish updates file times and the index after a successful write.
func (w *Writer) finish(rf RenderedFile, dest, text string, changed bool) {
	if changed && w.opts.SetFileTimes && !rf.Doc.UpdatedAt.IsZero() {
		if err := w.store.SetModTime(dest, rf.Doc.UpdatedAt); err != nil {
			w.logger.Warn("writer: set file time failed", slog.String("path", dest), slog.String("error", err.Error()))
		}
	}
	w.reindex(rf, dest, []byte(text))
}

func (w *Writer) reindex(rf RenderedFile, p string, data []byte) {
	if data == nil {
		return
	}
	res, err := parser.Parse(data)
	if err != nil {
		return
	}
	row := index.FileRow{
		Path:     p,
		Identity: res.Identity(w.opts.TrackingProperty),
		Title:    rf.Doc.SanitizedTitle,
		Checksum: checksum.Sum(data),
	}
	if err := w.idx.Upsert(row); err != nil {
		w.logger.Warn("writer: index update failed", slog.String("path", p), slog.String("error", err.Error()))
	}
}

// suffixed appends a short hash of the document identity to the basename.
// The hash is stable so repeated passes pick the same name. The name part is
// trimmed on a rune boundary so the basename fits in maxNameBytes.
func (w *Writer) suffixed(p string, rf RenderedFile) string {
	key := rf.Doc.Identity()
	if key == "" {
		key = strconv.FormatInt(rf.Doc.ID, 10)
	}
	tag := " " + checksum.Short(key) + ext
	dir, name := path.Split(strings.TrimSuffix(p, ext))
	if room := maxNameBytes - len(tag); len(name) > room {
		name = name[:room]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
		name = strings.TrimRight(name, " .")
	}
	return dir + name + tag
}

func (w *Writer) fail(rf RenderedFile, op, p string, err error) {
	we := &apperr.WriteError{Op: op, Path: p, DocumentID: rf.Doc.ID, Identity: rf.Doc.Identity(), Err: err}
	w.logger.Warn("writer: file failed",
		slog.String("op", op),
		slog.String("path", p),
		slog.Int64("document_id", rf.Doc.ID),
		slog.String("identity", rf.Doc.Identity()),
		slog.String("error", err.Error()),
	)
	w.mu.Lock()
	w.report.Failures = append(w.report.Failures, we)
	w.mu.Unlock()
	if w.observer != nil {
		w.observer.ObserveFileAction(ActionFailed)
	}
}

func (w *Writer) record(action string) {
	w.mu.Lock()
	switch action {
	case ActionCreated:
		w.report.Created++
	case ActionUpdated:
		w.report.Updated++
	case ActionUnchanged:
		w.report.Unchanged++
	case ActionRenamed:
		w.report.Renamed++
	case ActionFlagged:
		w.report.Flagged++
	case ActionTrashed:
		w.report.Trashed++
	}
	w.mu.Unlock()
	if w.observer != nil {
		w.observer.ObserveFileAction(action)
	}
}

// String renders a one-line summary for logs and notices.
func (r Report) String() string {
	return fmt.Sprintf("%d created, %d updated, %d renamed, %d unchanged, %d flagged, %d trashed, %d failed",
		r.Created, r.Updated, r.Renamed, r.Unchanged, r.Flagged, r.Trashed, len(r.Failures))
}
