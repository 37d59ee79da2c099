package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

func init() {
	// packages may log before Init runs (tests, early startup paths)
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Init initializes the global slog logger. The level string takes
// precedence over TASKDECK_LOG_LEVEL; TASKDECK_LOG_SINK=file:<path>
// redirects output to a file (appended), falling back to stdout when the
// file cannot be opened.
func Init(level string) {
	sink := os.Getenv("TASKDECK_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("TASKDECK_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

// Debug logs at debug level with alternating key/value args.
func Debug(msg string, args ...any) { Log.Debug(msg, args...) }

// Info logs at info level with alternating key/value args.
func Info(msg string, args ...any) { Log.Info(msg, args...) }

// Warn logs at warn level with alternating key/value args.
func Warn(msg string, args ...any) { Log.Warn(msg, args...) }

// Error logs at error level with alternating key/value args.
func Error(msg string, args ...any) { Log.Error(msg, args...) }
