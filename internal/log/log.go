// Package log provides structured logging for go-binbot.
// It wraps logrus with a console formatter and optional rotating file output.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Fields is an alias so callers need not import logrus.
type Fields = logrus.Fields

// Options configures the global logger.
type Options struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// File enables rotating file output in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`

	// JSON switches to machine-readable output.
	JSON bool `yaml:"json"`
}

// DefaultOptions returns console logging at info level.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// Init initializes the global logger. Only the first call has effect.
func Init(opts Options) {
	once.Do(func() {
		logger = New(opts, os.Stderr)
		logrus.SetLevel(logger.GetLevel())
		logrus.SetFormatter(logger.Formatter)
		logrus.SetOutput(logger.Out)
	})
}

// New builds a logger writing to out and, when opts.File is set, to a
// rotating file.
func New(opts Options, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(ParseLevel(opts.Level))

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&formatter.Formatter{
			TimestampFormat: "15:04:05.000",
			HideKeys:        false,
			NoColors:        os.Getenv("NO_COLOR") != "",
			FieldsOrder:     []string{"component", "session_id", "cycle_id", "status"},
		})
	}

	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			LocalTime:  true,
			Compress:   true,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))
	return l
}

// ParseLevel maps "debug", "info", "warn" and "error" to logrus levels.
// Anything else is info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// L returns the global logger instance.
func L() *logrus.Logger {
	if logger == nil {
		Init(DefaultOptions())
	}
	return logger
}

// With returns an entry carrying the given fields.
func With(fields Fields) *logrus.Entry {
	return L().WithFields(fields)
}

// Component returns an entry tagged with a component name.
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}

// Debug logs at debug level.
func Debug(msg string, fields Fields) {
	L().WithFields(fields).Debug(msg)
}

// Info logs at info level.
func Info(msg string, fields Fields) {
	L().WithFields(fields).Info(msg)
}

// Warn logs at warn level.
func Warn(msg string, fields Fields) {
	L().WithFields(fields).Warn(msg)
}

// Error logs at error level.
func Error(msg string, fields Fields) {
	L().WithFields(fields).Error(msg)
}
