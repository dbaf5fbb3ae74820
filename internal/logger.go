package internal

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the JSON logger. When a log file is configured, records
// are written to both out and the rotating file.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, func() error) {
	closeFn := func() error { return nil }
	if cfg.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
		}
		out = io.MultiWriter(out, lj)
		closeFn = lj.Close
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	return logger, closeFn
}
