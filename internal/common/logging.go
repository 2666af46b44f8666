package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	return l
}

// LogConfig selects level, format and an optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text|json
	Directory  string `yaml:"directory"`
	FileName   string `yaml:"fileName"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// SetupLogging reconfigures the package logger. When cfg.Directory is set the
// output is duplicated into a lumberjack rotated file.
func SetupLogging(cfg LogConfig) error {
	level := logrus.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	var formatter logrus.Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("unsupported log format %q (must be text or json)", cfg.Format)
	}
	var out io.Writer = os.Stderr
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.FileName
		if name == "" {
			name = "readinmarsat.log"
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, name),
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	return nil
}

// SetLogOutput redirects the package logger, mainly for tests.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Log returns the package logger for structured fields.
func Log() logrus.FieldLogger {
	return logger
}

func Logf(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
