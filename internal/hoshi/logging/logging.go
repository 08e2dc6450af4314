// Package logging configures log/slog for Hoshi.
//
// Every run writes to stdout and to its own file, logs/bot_<timestamp>.log,
// which admins can fetch with /logs. Lines emitted while handling an update
// carry the update's trace_id.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/igorvasilek/hoshi/common/redact"
	"github.com/igorvasilek/hoshi/common/trace"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
)

const (
	filePrefix = "bot_"
	fileSuffix = ".log"
	fileLayout = "2006-01-02_15-04-05"
)

var (
	mu      sync.Mutex
	current string
)

// ParseLevel maps "debug", "warn" and "error" to their slog level; anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a text or JSON handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup configures the global slog logger. When dir is non-empty a new log
// file is created there and receives a copy of every line. The returned
// closer flushes and closes that file.
func Setup(level, format, dir string) (io.Closer, error) {
	if dir == "" {
		slog.SetDefault(slog.New(NewHandler(os.Stdout, level, format)))
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, filePrefix+time.Now().Format(fileLayout)+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	slog.SetDefault(slog.New(NewHandler(io.MultiWriter(os.Stdout, f), level, format)))

	mu.Lock()
	current = path
	mu.Unlock()
	return f, nil
}

// CurrentFile returns the file the running process logs to, or "".
func CurrentFile() string {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// LatestLog returns the newest bot_*.log file in dir.
func LatestLog(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no log files in %s", dir)
	}
	// The timestamp layout sorts lexically.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}

// Outcome logs err at a level matching its kind: expected outcomes at debug,
// faults at error with the full cause. Secrets are stripped from the message.
func Outcome(ctx context.Context, msg string, err error, secrets []string, args ...any) {
	if err == nil {
		return
	}
	log := WithTrace(ctx)
	args = append(args, "kind", apperr.KindOf(err).String())
	if apperr.Expected(err) {
		log.Debug(msg, append(args, "reason", err.Error())...)
		return
	}
	log.Error(msg, append(args, "err", redact.Credentials(redact.String(err.Error(), secrets...)))...)
}
