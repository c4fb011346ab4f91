// Package logx sets up structured logging for the goflate CLI.
//
// Grounded on ossyrian-mintyparse/internal/logging/logging.go: a
// log/slog logger backed by github.com/lmittmann/tint for a colorized
// console handler, fanned out to an optional JSON file handler via
// github.com/samber/slog-multi. Library code (internal/deflate,
// internal/inflate, zipfile, zlib) does not log at all; only cmd/goflate
// does, mirroring the teacher's debugDeflate constant gate in
// flate/matchfinder.go.
package logx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup installs the default logger at the given level ("debug", "info",
// "warn", "error"). If logDir is non-empty, logs are additionally written
// as JSON to a timestamped file under logDir.
func Setup(levelStr, logDir string) error {
	level := parseLevel(levelStr)

	console := tint.NewHandler(os.Stdout, &tint.Options{Level: level})

	if logDir == "" {
		slog.SetDefault(slog.New(console))
		return nil
	}

	dir := os.ExpandEnv(logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logx: create log directory: %w", err)
	}

	name := fmt.Sprintf("goflate_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logx: open log file: %w", err)
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})

	slog.SetDefault(slog.New(slogmulti.Fanout(console, file)))
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
