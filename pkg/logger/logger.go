package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging contract used across the reconciler
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
}

// Fields is a set of structured key/value pairs attached to a log entry
type Fields map[string]interface{}

// Config holds configuration options for the logger
type Config struct {
	Level            Level     `json:"level"`
	Format           Format    `json:"format"`
	Output           Output    `json:"output"`
	File             string    `json:"file,omitempty"`
	DisableTimestamp bool      `json:"disable_timestamp,omitempty"`
	CallerInfo       bool      `json:"caller_info,omitempty"`
	Writer           io.Writer `json:"-"` // overrides Output when set
}

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	FatalLevel Level = "fatal"
)

type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

type Output string

const (
	StdoutOutput Output = "stdout"
	StderrOutput Output = "stderr"
	FileOutput   Output = "file"
)

// entryLogger adapts a logrus entry to Logger. Fields accumulate on the entry,
// so derived loggers keep everything attached by their parents.
type entryLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	base := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	base.SetLevel(level)

	writer, err := getOutputWriter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to set log output: %w", err)
	}
	base.SetOutput(writer)
	base.SetFormatter(getFormatter(config))
	base.SetReportCaller(config.CallerInfo)

	return &entryLogger{entry: logrus.NewEntry(base)}, nil
}

// DefaultConfig logs text at info level to stderr, keeping stdout free for reports
func DefaultConfig() *Config {
	return &Config{
		Level:  InfoLevel,
		Format: TextFormat,
		Output: StderrOutput,
	}
}

// DebugConfig returns a configuration suitable for debugging
func DebugConfig() *Config {
	return &Config{
		Level:      DebugLevel,
		Format:     TextFormat,
		Output:     StderrOutput,
		CallerInfo: true,
	}
}

// Discard returns a logger that drops everything. Handy in tests and for
// library callers that do not want engine logs.
func Discard() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return &entryLogger{entry: logrus.NewEntry(base)}
}

// Validate validates the logger configuration
func (c *Config) Validate() error {
	switch c.Level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case JSONFormat, TextFormat:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.Writer != nil {
		return nil
	}

	switch c.Output {
	case StdoutOutput, StderrOutput:
	case FileOutput:
		if strings.TrimSpace(c.File) == "" {
			return fmt.Errorf("log file path is required for file output")
		}
	default:
		return fmt.Errorf("invalid log output: %s", c.Output)
	}

	return nil
}

func getOutputWriter(config *Config) (io.Writer, error) {
	if config.Writer != nil {
		return config.Writer, nil
	}

	switch config.Output {
	case StdoutOutput:
		return os.Stdout, nil
	case FileOutput:
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, nil
	default:
		return os.Stderr, nil
	}
}

func getFormatter(config *Config) logrus.Formatter {
	if config.Format == JSONFormat {
		return &logrus.JSONFormatter{
			DisableTimestamp: config.DisableTimestamp,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		}
	}

	return &logrus.TextFormatter{
		DisableTimestamp: config.DisableTimestamp,
		FullTimestamp:    !config.DisableTimestamp,
		TimestampFormat:  "2006-01-02 15:04:05",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	}
}

func (l *entryLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *entryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *entryLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *entryLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *entryLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *entryLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *entryLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *entryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *entryLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *entryLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{entry: l.entry.WithError(err)}
}

func (l *entryLogger) WithComponent(component string) Logger {
	return l.WithField("component", component)
}

var globalLogger Logger

func init() {
	var err error
	globalLogger, err = NewLogger(DefaultConfig())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}
}

// SetGlobalLogger replaces the logger used by the package-level functions
func SetGlobalLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

func GetGlobalLogger() Logger {
	return globalLogger
}

func Debug(args ...interface{})                 { globalLogger.Debug(args...) }
func Debugf(format string, args ...interface{}) { globalLogger.Debugf(format, args...) }
func Info(args ...interface{})                  { globalLogger.Info(args...) }
func Infof(format string, args ...interface{})  { globalLogger.Infof(format, args...) }
func Warn(args ...interface{})                  { globalLogger.Warn(args...) }
func Warnf(format string, args ...interface{})  { globalLogger.Warnf(format, args...) }
func Error(args ...interface{})                 { globalLogger.Error(args...) }
func Errorf(format string, args ...interface{}) { globalLogger.Errorf(format, args...) }

func WithField(key string, value interface{}) Logger { return globalLogger.WithField(key, value) }
func WithFields(fields Fields) Logger               { return globalLogger.WithFields(fields) }
func WithError(err error) Logger                    { return globalLogger.WithError(err) }
func WithComponent(component string) Logger         { return globalLogger.WithComponent(component) }
