package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logFilePath returns where TUI mode writes its log when none is configured.
func logFilePath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "state")
		}
	}
	if dir == "" {
		return filepath.Join(os.TempDir(), "ptop.log")
	}
	return filepath.Join(dir, "ptop", "ptop.log")
}

// setupLogging builds the process logger and installs it as the zerolog
// global. With toFile set (TUI mode, where bubbletea owns the terminal) it
// appends to path, or to logFilePath() when path is empty; otherwise it
// writes human-readable lines to stderr. The returned closer is never nil.
func setupLogging(level, path string, toFile bool) (zerolog.Logger, io.Closer, error) {
	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	var closer io.Closer = nopCloser{}
	if toFile {
		if path == "" {
			path = logFilePath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	lvl, lvlErr := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if lvlErr != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	if lvlErr != nil {
		logger.Warn().Str("level", level).Msg("unknown log level, using info")
	}
	log.Logger = logger
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
