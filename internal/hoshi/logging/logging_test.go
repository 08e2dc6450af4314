package logging_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igorvasilek/hoshi/common/trace"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
)

func captureDefault(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(logging.NewHandler(&buf, level, "text")))
	return &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithTrace_AddsTraceID(t *testing.T) {
	buf := captureDefault(t, "info")

	ctx := trace.WithTraceID(context.Background(), "t_abc")
	logging.WithTrace(ctx).Info("hello")

	if !strings.Contains(buf.String(), "trace_id=t_abc") {
		t.Errorf("expected trace_id in output, got %q", buf.String())
	}
}

func TestOutcome_LevelsByKind(t *testing.T) {
	buf := captureDefault(t, "info")
	ctx := context.Background()

	logging.Outcome(ctx, "denied", apperr.ErrRateLimited, nil)
	if buf.Len() != 0 {
		t.Errorf("expected outcomes must not log at info, got %q", buf.String())
	}

	logging.Outcome(ctx, "store failed", apperr.Storage("append", errors.New("disk full token=sk-abcdefghijklmnopqrstuvwxyz")), []string{"disk"})
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "kind=storage") {
		t.Errorf("expected error-level storage log, got %q", out)
	}
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz") || strings.Contains(out, "disk full") {
		t.Errorf("secrets leaked into log: %q", out)
	}
}

func TestSetup_WritesFileAndLatestLog(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	closer, err := logging.Setup("info", "text", dir)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	slog.Info("written to file")
	closer.Close()

	latest, err := logging.LatestLog(dir)
	if err != nil {
		t.Fatalf("LatestLog: %v", err)
	}
	if latest != logging.CurrentFile() {
		t.Errorf("LatestLog %q != CurrentFile %q", latest, logging.CurrentFile())
	}
	data, err := os.ReadFile(latest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing line: %q", data)
	}
}

func TestLatestLog_PicksNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bot_2025-01-01_10-00-00.log", "bot_2025-03-01_09-00-00.log", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got, err := logging.LatestLog(dir)
	if err != nil {
		t.Fatalf("LatestLog: %v", err)
	}
	if filepath.Base(got) != "bot_2025-03-01_09-00-00.log" {
		t.Errorf("got %s", got)
	}

	if _, err := logging.LatestLog(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}
}
