// Package logging sets up the per-session logger: structured output to the
// console, teed into an append-only per-day file under the project log
// directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Session is the logger for one tool invocation plus the path of the day's
// log file.
type Session struct {
	*slog.Logger
	file *os.File
	path string
}

// Open creates the log directory if needed and opens the day's log file for
// appending. When the file cannot be opened the session still works,
// logging to stderr only.
func Open(logDir string, now time.Time) *Session {
	path := filepath.Join(logDir, now.Format("20060102")+".log")

	var w io.Writer = os.Stderr
	var file *os.File
	if err := os.MkdirAll(logDir, 0755); err == nil {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			file = f
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	if file == nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open session log %s, logging to console only\n", path)
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &Session{Logger: logger, file: file, path: path}
}

// Path returns the day's log file location.
func (s *Session) Path() string { return s.path }

// Close flushes and closes the log file.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
