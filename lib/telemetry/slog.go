package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog sets the default slog handler. The scraper writes its log to
// a per-run file plus stderr, the file is what gets linked from the run
// record in the store.
func InitSlog(logfile *os.File, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if logfile != nil {
		out = logfile
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
