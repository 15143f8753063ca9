// Package logging builds the logrus logger used across the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/limberduck/tsccm/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// LevelForVerbosity maps the -v counter to a log level: 0 warn, 1 info, 2+ debug.
func LevelForVerbosity(verbose int) logrus.Level {
	switch {
	case verbose <= 0:
		return logrus.WarnLevel
	case verbose == 1:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// New returns a logger writing to stderr (and to the rotated log file when configured),
// tagged with a per-invocation run id.
func New(stderr io.Writer, verbose int, cfg config.LogConfig) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetLevel(LevelForVerbosity(verbose))
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: timestampFormat,
		FullTimestamp:   true,
	})

	out := stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		out = io.MultiWriter(stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(out)

	return logger.WithField("run", uuid.NewString()), nil
}

// Discard returns a logger that drops everything. Used when no logger has been built yet.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
