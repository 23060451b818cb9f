// Package logger wraps log/slog with a process-wide application logger and a
// separate audit channel. The audit channel records every state-changing
// operation on an agent and writes to its own rotating file so that the trail
// survives normal log churn.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes the application logger.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the audit trail output.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu       sync.Mutex
	appLog   *slog.Logger
	auditLog *slog.Logger
	closers  []io.Closer
)

// Init configures the global loggers. Calling it twice is an error; use the
// zero Config for a stdout JSON logger.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if appLog != nil {
		return errors.New("logger already initialised")
	}

	level := parseLevel(cfg.Level)
	writer, err := combineOutputs(cfg.OutputPaths)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	if strings.EqualFold(cfg.Format, "text") {
		appLog = slog.New(slog.NewTextHandler(writer, opts))
	} else {
		appLog = slog.New(slog.NewJSONHandler(writer, opts))
	}

	auditLog = appLog
	if cfg.Audit.Enabled {
		audit, err := openAudit(cfg.Audit)
		if err != nil {
			return err
		}
		auditLog = audit
	}
	return nil
}

func combineOutputs(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(path) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			closers = append(closers, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openAudit(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	closers = append(closers, writer)
	// The audit trail is always JSON at info level regardless of app settings.
	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})), nil
}

func parseLevel(level string) slog.Level {
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

// L returns the application logger, initialising a default one if needed.
func L() *slog.Logger {
	mu.Lock()
	initialised := appLog != nil
	mu.Unlock()
	if !initialised {
		_ = Init(Config{})
	}
	return appLog
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	if auditLog == nil {
		return L()
	}
	return auditLog
}

// Named returns a child logger grouped under the given component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync closes any file-backed outputs.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}
