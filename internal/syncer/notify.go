package syncer

import "log/slog"

// Notifier delivers user-visible sync feedback: short notices, the
// persistent status and writer progress.
type Notifier interface {
	Notice(msg string)
	Status(st Status)
	Progress(done, total int)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notice(msg string) {
	n.Logger.Info("notice", slog.String("message", msg))
}

func (n LogNotifier) Status(st Status) {
	n.Logger.Debug("status", slog.String("state", st.State.String()), slog.String("last", st.Last))
}

func (n LogNotifier) Progress(done, total int) {
	if total > 0 && (done == total || done%100 == 0) {
		n.Logger.Debug("progress", slog.Int("done", done), slog.Int("total", total))
	}
}

// Fanout sends every notification to each notifier in order.
type Fanout []Notifier

func (f Fanout) Notice(msg string) {
	for _, n := range f {
		n.Notice(msg)
	}
}

func (f Fanout) Status(st Status) {
	for _, n := range f {
		n.Status(st)
	}
}

func (f Fanout) Progress(done, total int) {
	for _, n := range f {
		n.Progress(done, total)
	}
}
