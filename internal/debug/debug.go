// Package debug provides logging infrastructure for notepad.
// Logging is only enabled when --debug is passed or log.file is configured.
// Logs are written to ~/.notepad/debug.log and rotated by size.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LogFileName is the name of the debug log file.
	LogFileName = "debug.log"
	// LogDirName is the name of the directory containing the log file.
	LogDirName = ".notepad"

	defaultMaxSizeMB  = 5
	defaultMaxBackups = 3
	defaultLevel      = "debug"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  *log.Logger
	sink    *lumberjack.Logger

	// getLogPath is a function variable to allow overriding in tests.
	getLogPath = defaultGetLogPath
)

type settings struct {
	level     string
	file      string
	maxSizeMB int
}

// Option configures Init.
type Option func(*settings)

// WithLevel sets the minimum logrus level ("debug", "info", "warn", ...).
func WithLevel(level string) Option {
	return func(s *settings) {
		if level != "" {
			s.level = level
		}
	}
}

// WithFile overrides the log file location.
func WithFile(path string) Option {
	return func(s *settings) {
		s.file = path
	}
}

// WithMaxSize sets the rotation threshold in megabytes.
func WithMaxSize(mb int) Option {
	return func(s *settings) {
		if mb > 0 {
			s.maxSizeMB = mb
		}
	}
}

// Init initializes the logging system.
// If enable is false, all logging operations become no-ops.
func Init(enable bool, opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	closeSinkLocked()
	enabled = enable
	logger = log.New()
	logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	if !enable {
		logger.SetOutput(io.Discard)
		return nil
	}

	cfg := settings{level: defaultLevel, maxSizeMB: defaultMaxSizeMB}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := log.ParseLevel(cfg.level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.level, err)
	}
	logger.SetLevel(level)

	logPath := cfg.file
	if logPath == "" {
		logPath, err = getLogPath()
		if err != nil {
			return fmt.Errorf("determine log path: %w", err)
		}
	}

	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	sink = &lumberjack.Logger{
		Filename:   filepath.ToSlash(logPath),
		MaxSize:    cfg.maxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     30, // days
	}
	logger.SetOutput(sink)
	logger.Infof("=== notepad debug log started at %s ===", time.Now().Format(time.RFC3339))

	return nil
}

// Close closes the log file if open.
// Safe to call even if logging is disabled.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeSinkLocked()
}

func closeSinkLocked() {
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// Log writes a debug message if logging is enabled.
// Arguments are handled in the manner of fmt.Print.
func Log(v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Debug(v...)
}

// Logf writes a formatted debug message if logging is enabled.
// Arguments are handled in the manner of fmt.Printf.
func Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Debugf(format, v...)
}

// Logger returns a structured entry tagged with the given component.
// The entry discards output until Init(true) has been called.
func Logger(component string) *log.Entry {
	mu.RLock()
	defer mu.RUnlock()

	l := logger
	if l == nil {
		l = log.New()
		l.SetOutput(io.Discard)
	}
	return l.WithField("component", component)
}

// Enabled returns whether logging is currently enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// defaultGetLogPath returns the path to the debug log file.
func defaultGetLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, LogDirName, LogFileName), nil
}

// GetLogPath returns the path to the debug log file.
// Exported for use by other packages that need to know where logs are.
func GetLogPath() (string, error) {
	return getLogPath()
}
