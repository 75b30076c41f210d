package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a level name, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// FieldComponent tags records with the emitting component
const FieldComponent = "component"

// filePrefix names daily log files: echodoc-YYYYMMDD.log
const filePrefix = "echodoc-"

// sink is the rotating output shared by a logger and its component children
type sink struct {
	mu            sync.RWMutex
	level         Level
	file          *os.File
	zl            zerolog.Logger
	logDir        string
	currentDay    string
	retentionDays int
	console       bool
	fixed         bool // writer supplied by the caller, no rotation
}

// Logger writes leveled records to a daily log file with retention
type Logger struct {
	sink      *sink
	component string
}

// Config holds logger configuration
type Config struct {
	LogDir        string
	Level         Level
	RetentionDays int
	// Console mirrors records to stderr in human-readable form
	Console bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	logDir := filepath.Join(homeDir, "Library", "Application Support", "EchoDoc", "logs")

	return Config{
		LogDir:        logDir,
		Level:         INFO,
		RetentionDays: 7,
	}
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	s := &sink{
		level:         config.Level,
		logDir:        config.LogDir,
		retentionDays: config.RetentionDays,
		console:       config.Console,
	}

	if err := s.rotate(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Logger{sink: s}, nil
}

// NewWithWriter creates a logger that writes JSON records to w without rotation
func NewWithWriter(w io.Writer, level Level) *Logger {
	return &Logger{sink: &sink{
		level: level,
		zl:    zerolog.New(w).With().Timestamp().Logger(),
		fixed: true,
	}}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{sink: &sink{
		level: ERROR + 1,
		zl:    zerolog.Nop(),
		fixed: true,
	}}
}

// WithComponent returns a logger tagged with a component name.
// It shares the parent's file, level and rotation.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{sink: l.sink, component: name}
}

// rotate opens today's log file if the day changed
func (s *sink) rotate() error {
	s.mu.Lock()

	today := time.Now().Format("20060102")
	if s.currentDay == today && s.file != nil {
		s.mu.Unlock()
		return nil
	}

	if s.file != nil {
		s.file.Close()
	}

	if err := os.MkdirAll(s.logDir, 0755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(s.logDir, filePrefix+today+".log")
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open log file: %w", err)
	}

	s.file = file
	s.currentDay = today

	var out io.Writer = file
	if s.console {
		out = zerolog.MultiLevelWriter(file, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	s.zl = zerolog.New(out).With().Timestamp().Logger()
	zl := s.zl
	s.mu.Unlock()

	if err := s.cleanOldLogs(); err != nil {
		zl.Warn().Err(err).Msg("Failed to clean old logs")
	}

	return nil
}

// cleanOldLogs deletes log files older than retentionDays
func (s *sink) cleanOldLogs() error {
	cutoffDate := time.Now().AddDate(0, 0, -s.retentionDays)

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffDate) {
			// Continue even if we can't delete a file
			os.Remove(filepath.Join(s.logDir, entry.Name()))
		}
	}

	return nil
}

func (s *sink) checkRotation() {
	if s.fixed {
		return
	}

	s.mu.RLock()
	currentDay := s.currentDay
	s.mu.RUnlock()

	if currentDay != time.Now().Format("20060102") {
		if err := s.rotate(); err != nil {
			// Can't log this error since logging is failing
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}
}

func (l *Logger) log(level Level, format string, v ...interface{}) {
	s := l.sink
	s.mu.RLock()
	enabled := level >= s.level
	s.mu.RUnlock()
	if !enabled {
		return
	}

	s.checkRotation()

	s.mu.RLock()
	zl := s.zl
	s.mu.RUnlock()

	ev := zl.WithLevel(level.zerolog())
	if l.component != "" {
		ev = ev.Str(FieldComponent, l.component)
	}
	ev.Msgf(format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, format, v...)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, format, v...)
}

// Close closes the log file
func (l *Logger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	return l.sink.level
}
