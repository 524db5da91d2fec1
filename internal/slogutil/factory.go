package slogutil

import (
	"io"
	"log/slog"
	"os"

	"getudid/internal/config"
	"getudid/internal/paths"
)

// LoggerFactory builds the operator logger from configuration.
// Precedence for the level: CLI flag > config > info.
type LoggerFactory struct {
	config   *config.Config
	cliLevel *slog.Level
	stderr   io.Writer
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory. cliLevel may be nil.
func NewLoggerFactory(cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		config:   cfg,
		cliLevel: cliLevel,
		stderr:   os.Stderr,
	}
}

// ServerLogger returns a logger writing to stderr and, when logging.toFile is set,
// to the configured (or default) log file. A log file that cannot be opened
// degrades to stderr only and is reported through the returned logger.
func (f *LoggerFactory) ServerLogger() *slog.Logger {
	level := f.effectiveLevel()
	console := NewTextHandler(f.stderr, &slog.HandlerOptions{Level: level})

	if !f.config.Logging.ToFile {
		return slog.New(console)
	}

	path, err := f.logPath()
	if err != nil {
		logger := slog.New(console)
		logger.Warn("File logging disabled", "error", err)
		return logger
	}

	fileLogger, closer, err := NewFileLoggerWithRotation(path, level, f.config.Logging.MaxSize, f.config.Logging.MaxBackups, f.config.Logging.Compress)
	if err != nil {
		logger := slog.New(console)
		logger.Warn("File logging disabled", "path", path, "error", err)
		return logger
	}
	f.closers = append(f.closers, closer)

	return slog.New(NewTeeHandler(console, fileLogger.Handler()))
}

func (f *LoggerFactory) logPath() (string, error) {
	if f.config.Logging.File != "" {
		return f.config.Logging.File, nil
	}
	if _, err := paths.EnsureLogsDir(); err != nil {
		return "", err
	}
	return paths.GetLogPath()
}

func (f *LoggerFactory) effectiveLevel() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
