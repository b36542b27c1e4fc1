// Package logger wraps zerolog with optional rotating file output and a
// process-global instance used by the bootstrap components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config represents logger configuration
type Config struct {
	ConsoleOutput bool   `yaml:"console_output"`
	ConsoleColor  bool   `yaml:"console_color"`
	FileOutput    bool   `yaml:"file_output"`
	FileName      string `yaml:"file_name"`
	FileMaxSize   string `yaml:"file_max_size"`
	FileMaxAge    int    `yaml:"file_max_age_days"`
	Level         string `yaml:"level"`
}

// Logger wraps zerolog functionality with isolated dependencies
type Logger struct {
	zlog   zerolog.Logger
	config Config
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init initializes the global logger with given configuration
func Init(config Config) error {
	logger, err := New(config)
	if err != nil {
		return err
	}
	SetGlobal(logger)
	return nil
}

// SetGlobal replaces the global logger; nil disables global logging
func SetGlobal(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var writers []io.Writer

	if config.ConsoleOutput {
		var consoleWriter io.Writer = os.Stderr
		if config.ConsoleColor {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
				FormatLevel: func(i interface{}) string {
					level := strings.ToUpper(fmt.Sprintf("%s", i))
					switch level {
					case "DEBUG":
						return "\033[36mDEBUG\033[0m"
					case "INFO":
						return "\033[32mINFO\033[0m"
					case "WARN":
						return "\033[33mWARN\033[0m"
					case "ERROR":
						return "\033[31mERROR\033[0m"
					default:
						return level
					}
				},
			}
		}
		writers = append(writers, consoleWriter)
	}

	if config.FileOutput {
		if config.FileName == "" {
			return nil, fmt.Errorf("file_name is required when file_output is enabled")
		}

		maxSizeMB, err := parseMaxSize(config.FileMaxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid file_max_size: %w", err)
		}

		logFilePath := config.FileName
		if !filepath.IsAbs(logFilePath) {
			execDir, err := getExecutableDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get executable directory: %w", err)
			}
			logFilePath = filepath.Join(execDir, logFilePath)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename: logFilePath,
			MaxSize:  maxSizeMB, // megabytes
			MaxAge:   config.FileMaxAge,
			Compress: true,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	return FromWriter(writer, level, config), nil
}

// FromWriter builds a logger writing JSON lines to w
func FromWriter(w io.Writer, level zerolog.Level, config Config) *Logger {
	return &Logger{
		zlog:   zerolog.New(w).Level(level).With().Timestamp().Logger(),
		config: config,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Component returns a child logger tagged with the component name. When the
// global logger is unset the child discards everything.
func Component(name string) *Logger {
	l := global()
	if l == nil {
		return Nop()
	}
	return l.With("component", name)
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Fields(fieldsToMap(fields...)).Logger(),
		config: l.config,
	}
}

// ParseLevel converts string to zerolog level
func ParseLevel(levelStr string) (zerolog.Level, error) {
	switch LogLevel(strings.ToLower(levelStr)) {
	case LevelDebug:
		return zerolog.DebugLevel, nil
	case LevelInfo, "":
		return zerolog.InfoLevel, nil
	case LevelWarn, "warning":
		return zerolog.WarnLevel, nil
	case LevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// parseMaxSize converts size string (e.g., "10MB") to megabytes
func parseMaxSize(sizeStr string) (int, error) {
	if sizeStr == "" {
		return 10, nil // default 10MB
	}

	sizeStr = strings.TrimSuffix(strings.ToUpper(sizeStr), "MB")
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}
	if size <= 0 {
		return 0, fmt.Errorf("size must be positive: %d", size)
	}
	return size, nil
}

func getExecutableDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(execPath), nil
}

// Global logging functions that use the global logger

// Debug logs a debug message
func Debug(msg string, fields ...interface{}) {
	if l := global(); l != nil {
		l.Debug(msg, fields...)
	}
}

// Info logs an info message
func Info(msg string, fields ...interface{}) {
	if l := global(); l != nil {
		l.Info(msg, fields...)
	}
}

// Warn logs a warning message
func Warn(msg string, fields ...interface{}) {
	if l := global(); l != nil {
		l.Warn(msg, fields...)
	}
}

// Error logs an error message
func Error(msg string, fields ...interface{}) {
	if l := global(); l != nil {
		l.Error(msg, fields...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.event(l.zlog.Debug(), fields).Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.event(l.zlog.Info(), fields).Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.event(l.zlog.Warn(), fields).Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.event(l.zlog.Error(), fields).Msg(msg)
}

func (l *Logger) event(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	if len(fields) > 0 {
		return e.Fields(fieldsToMap(fields...))
	}
	return e
}

// fieldsToMap converts variadic fields to map for zerolog
func fieldsToMap(fields ...interface{}) map[string]interface{} {
	fieldMap := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			if err, isErr := fields[i+1].(error); isErr {
				fieldMap[key] = err.Error()
				continue
			}
			fieldMap[key] = fields[i+1]
		}
	}
	return fieldMap
}
