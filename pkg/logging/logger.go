// Package logging provides component loggers for the browser sidecar.
//
// Stdout carries the line protocol, so loggers only ever write to stderr and,
// when a log directory is configured, to a per-process file named
// <session-id>-browser-sidecar.log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Dir is the directory for the log file. Empty disables file logging.
	Dir string

	// Stderr overrides the console sink (tests). Nil means os.Stderr.
	Stderr io.Writer
}

// Logger is a component-scoped structured logger.
type Logger struct {
	sessionID string
	component string
	sugar     *zap.SugaredLogger
	logPath   string

	// shared between a root logger and its Named children
	closer *fileCloser
}

type fileCloser struct {
	file      *os.File
	closeOnce sync.Once
}

// New creates the root logger for this process.
//
// If the log file cannot be opened, it returns a logger writing to stderr only
// along with the error, so callers can warn and carry on.
func New(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	sessionID := uuid.New().String()
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(stderr), level),
	}

	var (
		closer  = &fileCloser{}
		logPath string
		fileErr error
	)
	if opts.Dir != "" {
		logPath = filepath.Join(opts.Dir, fmt.Sprintf("%s-browser-sidecar.log", sessionID))
		closer.file, fileErr = openLogFile(opts.Dir, logPath)
		if fileErr == nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(closer.file), level))
		} else {
			logPath = ""
		}
	}

	base := zap.New(zapcore.NewTee(cores...)).With(zap.String("session", sessionID))
	logger := &Logger{
		sessionID: sessionID,
		component: "sidecar",
		sugar:     base.Sugar().Named("sidecar"),
		logPath:   logPath,
		closer:    closer,
	}

	if fileErr != nil {
		logger.Warnf("file logging disabled, falling back to stderr: %v", fileErr)
		return logger, fileErr
	}
	return logger, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		component: "nop",
		sugar:     zap.NewNop().Sugar(),
		closer:    &fileCloser{},
	}
}

func openLogFile(dir, path string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func parseLevel(level string) (zap.AtomicLevel, error) {
	if strings.TrimSpace(level) == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	parsed, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zap.NewAtomicLevelAt(parsed), nil
}

// Named returns a child logger for a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: component,
		sugar:     l.sugar.Named(component),
		logPath:   l.logPath,
		closer:    l.closer,
	}
}

// With returns a child logger carrying extra key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	child := *l
	child.sugar = l.sugar.With(keysAndValues...)
	return &child
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// SessionID returns the process session ID.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, or "" when logging to stderr only.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes buffered entries and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	_ = l.sugar.Sync() // stderr sync fails on some terminals
	var err error
	l.closer.closeOnce.Do(func() {
		if l.closer.file != nil {
			err = l.closer.file.Close()
		}
	})
	return err
}
