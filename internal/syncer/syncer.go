// Package syncer orchestrates one sync pass: token check, full or delta
// fetch, library build, rendering, index refresh and the write phase.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/frontmatter"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/writer"
)

// State is the orchestrator state.
type State int32

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "idle"
}

// Fetcher is the remote client surface used by a pass.
type Fetcher interface {
	ValidateToken(ctx context.Context) (bool, error)
	FetchAll(ctx context.Context, kind string, updatedAfter *time.Time, ids []int64) ([]models.DocumentRecord, error)
	FetchDelta(ctx context.Context, kind string, since time.Time) ([]models.DocumentRecord, error)
}

// Options selects the behavior of one pass.
type Options struct {
	// Full ignores the checkpoint and refetches the whole library.
	Full bool
}

// Result describes a finished pass.
type Result struct {
	PassID         string
	Full           bool
	Fetched        int
	Documents      int
	Highlights     int
	Filtered       library.Stats
	RenderFailures []error
	Report         writer.Report
	Checkpoint     time.Time
	Started        time.Time
	Duration       time.Duration
}

// Status is the persistent sync indicator.
type Status struct {
	State      State
	Last       string // "", "ok" or "failed: ..."
	LastPassID string
	LastRun    time.Time
	Checkpoint *time.Time
	Done       int
	Total      int
	Result     *Result
}

// Config wires a Syncer.
type Config struct {
	Remote       Fetcher
	DB           *index.DB
	Store        storage.Provider
	Engine       *frontmatter.Engine // nil disables frontmatter
	Renderer     render.Renderer
	BodyTemplate string
	Writer       *writer.Writer
	Filter       library.Filter
	Kind         string
	Clock        Clock
	IDs          IDGenerator
	Metrics      metrics.Recorder
	Notifier     Notifier
	Logger       *slog.Logger
}

// Syncer runs sync passes. At most one pass runs at a time; overlapping
// requests are rejected, not queued.
type Syncer struct {
	cfg     Config
	state   atomic.Int32
	running sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// New creates a Syncer, filling optional collaborators with defaults.
func New(cfg Config) *Syncer {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDGenerator{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}
	if cfg.BodyTemplate == "" {
		cfg.BodyTemplate = render.DefaultBodyTemplate
	}
	if cfg.Kind == "" {
		cfg.Kind = "export"
	}
	s := &Syncer{cfg: cfg}
	cfg.Writer.SetProgress(s.progress)
	return s
}

// State returns the current state.
func (s *Syncer) State() State {
	return State(s.state.Load())
}

// Status returns a snapshot of the persistent status.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.State = s.State()
	if t, ok, err := s.cfg.DB.Checkpoint(); err == nil && ok {
		st.Checkpoint = &t
	}
	return st
}

// Sync runs one pass and blocks until it finishes. It returns
// apperr.ErrSyncInProgress immediately when a pass is already running.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	if !s.acquire() {
		return nil, apperr.ErrSyncInProgress
	}
	defer s.running.Done()
	return s.run(ctx, opts)
}

// Start launches a pass in the background and returns once it has been
// accepted. The pass is detached from ctx cancellation of the caller.
func (s *Syncer) Start(ctx context.Context, opts Options) error {
	if !s.acquire() {
		return apperr.ErrSyncInProgress
	}
	go func() {
		defer s.running.Done()
		_, _ = s.run(context.WithoutCancel(ctx), opts)
	}()
	return nil
}

// Wait blocks until the pass in progress, if any, has finished.
func (s *Syncer) Wait() {
	s.running.Wait()
}

// Schedule runs a pass every interval until ctx is cancelled. Ticks that
// find a pass in progress are skipped.
func (s *Syncer) Schedule(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.Sync(ctx, Options{}); err != nil && !errors.Is(err, apperr.ErrSyncInProgress) {
				s.cfg.Logger.Warn("scheduled sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Syncer) acquire() bool {
	if s.state.CompareAndSwap(int32(Idle), int32(Syncing)) {
		s.running.Add(1)
		return true
	}
	s.cfg.Notifier.Notice("A sync is already in progress.")
	return false
}

// run executes a pass. The deferred block returns the state machine to Idle
// on every exit path, including panics.
func (s *Syncer) run(ctx context.Context, opts Options) (res *Result, err error) {
	passID := s.cfg.IDs.New()
	start := s.cfg.Clock.Now()
	logger := s.cfg.Logger.With(slog.String("pass_id", passID))

	s.mu.Lock()
	s.status.Done, s.status.Total = 0, 0
	s.mu.Unlock()
	s.cfg.Notifier.Status(s.Status())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
			res = nil
		}
		elapsed := time.Since(start)
		s.mu.Lock()
		s.status.LastPassID = passID
		s.status.LastRun = start
		if err != nil {
			s.status.Last = "failed: " + err.Error()
		} else {
			s.status.Last = "ok"
			s.status.Result = res
		}
		s.mu.Unlock()
		s.state.Store(int32(Idle))

		if err != nil {
			logger.Error("sync failed", slog.String("error", err.Error()))
			s.cfg.Metrics.ObserveSync("failed", elapsed)
			s.cfg.Notifier.Notice("Sync failed: " + err.Error())
		} else {
			logger.Info("sync finished", slog.String("summary", res.Report.String()), slog.Duration("duration", elapsed))
			s.cfg.Metrics.ObserveSync("ok", elapsed)
			s.cfg.Notifier.Notice("Sync finished: " + res.Report.String())
		}
		s.cfg.Notifier.Status(s.Status())
	}()

	res, err = s.pass(ctx, logger, passID, start, opts)
	return res, err
}

func (s *Syncer) pass(ctx context.Context, logger *slog.Logger, passID string, start time.Time, opts Options) (*Result, error) {
	res := &Result{PassID: passID, Started: start}

	ok, err := s.cfg.Remote.ValidateToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !ok {
		return nil, apperr.ErrTokenInvalid
	}

	checkpoint, has, err := s.cfg.DB.Checkpoint()
	if err != nil {
		return nil, err
	}
	var records []models.DocumentRecord
	if opts.Full || !has {
		res.Full = true
		logger.Info("full fetch", slog.String("kind", s.cfg.Kind))
		records, err = s.cfg.Remote.FetchAll(ctx, s.cfg.Kind, nil, nil)
	} else {
		logger.Info("delta fetch", slog.String("kind", s.cfg.Kind), slog.Time("since", checkpoint))
		records, err = s.cfg.Remote.FetchDelta(ctx, s.cfg.Kind, checkpoint)
	}
	if err != nil {
		return nil, err
	}
	res.Fetched = len(records)

	lib, filtered := s.cfg.Filter.Apply(library.Build(records))
	res.Filtered = filtered
	res.Documents = len(lib.Documents)
	res.Highlights = lib.HighlightCount
	logger.Info("library built",
		slog.Int("fetched", res.Fetched),
		slog.Int("documents", res.Documents),
		slog.Int("highlights", res.Highlights),
		slog.Int("excluded", filtered.DeletedDocuments+filtered.ExcludedDocuments),
	)

	files := make([]writer.RenderedFile, 0, len(lib.Documents))
	for _, doc := range lib.Ordered() {
		rf, err := s.renderDocument(doc)
		if err != nil {
			logger.Warn("render failed",
				slog.Int64("document_id", doc.ID),
				slog.String("identity", doc.Identity()),
				slog.String("error", err.Error()),
			)
			res.RenderFailures = append(res.RenderFailures, err)
			continue
		}
		files = append(files, rf)
	}
	if n := len(res.RenderFailures); n > 0 {
		s.cfg.Notifier.Notice(fmt.Sprintf("%d document(s) could not be rendered; see log.", n))
	}

	trackingProp := ""
	if s.cfg.Engine != nil {
		trackingProp = s.cfg.Engine.TrackingProperty()
	}
	if _, err := index.Sync(s.cfg.DB, s.cfg.Store, trackingProp, logger); err != nil {
		return nil, fmt.Errorf("refresh index: %w", err)
	}

	res.Report = s.cfg.Writer.Process(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Documents that failed to render are retried next pass from the same window.
	if len(res.RenderFailures) == 0 {
		if err := s.cfg.DB.SetCheckpoint(start); err != nil {
			return nil, err
		}
		res.Checkpoint = start
	} else if has {
		res.Checkpoint = checkpoint
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (s *Syncer) renderDocument(doc *models.DocumentRecord) (writer.RenderedFile, error) {
	d := render.Display(doc)
	fm := frontmatter.New()
	if s.cfg.Engine != nil {
		var err error
		if fm, err = s.cfg.Engine.Render(d); err != nil {
			return writer.RenderedFile{}, err
		}
	}
	body, err := s.cfg.Renderer.Render(s.cfg.BodyTemplate, render.Fields(d))
	if err != nil {
		return writer.RenderedFile{}, fmt.Errorf("render body: %w", err)
	}
	return writer.RenderedFile{
		Basename:    d.SanitizedTitle,
		Doc:         d,
		Frontmatter: fm,
		Contents:    body,
	}, nil
}

func (s *Syncer) progress(done, total int) {
	s.mu.Lock()
	s.status.Done, s.status.Total = done, total
	s.mu.Unlock()
	s.cfg.Notifier.Progress(done, total)
}
