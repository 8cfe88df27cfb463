// Package logging sets up the JSON slog logger shared by every command.
//
// Logs go to one file per day, tasksync-YYYY-MM-DD.log, inside the log
// directory. Files older than the retention window are removed when a logger
// is opened.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// DefaultRetentionDays is how many daily files are kept.
const DefaultRetentionDays = 7

const (
	filePrefix = "tasksync-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

// Options controls where and how much is logged.
type Options struct {
	Dir           string
	Level         string
	RetentionDays int
	Now           func() time.Time
}

// New opens today's log file and returns a logger writing to it together with
// the closer for that file. With an empty Dir it logs to stderr.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.Dir == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nopCloser{}, nil
	}

	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(opts.Dir, FileName(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	logger := slog.New(slog.NewJSONHandler(file, handlerOpts))
	if removed, err := Prune(opts.Dir, retention, now); err != nil {
		logger.Warn("log cleanup failed", "dir", opts.Dir, "error", err)
	} else if removed > 0 {
		logger.Debug("old logs removed", "count", removed)
	}

	return logger, file, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FileName is the log file name for the day of t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(dayLayout) + fileSuffix
}

// Prune deletes daily log files older than retentionDays relative to now and
// returns how many it removed. Files it does not recognise are left alone.
func Prune(dir string, retentionDays int, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	today, _ := time.ParseInLocation(dayLayout, now.Format(dayLayout), now.Location())
	cutoff := today.AddDate(0, 0, -retentionDays)

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ParseLevel converts a level name to a slog level, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
