package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the shared instance. Packages normally derive component
	// loggers from the global logrus instead of touching this directly.
	Logger *logrus.Logger

	currentLogFile string
	savedConfig    Config
	logMu          sync.Mutex
)

// Config controls log level, format and file output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty means console only
	MaxSize    int    // megabytes before lumberjack rotates
	MaxBackups int    // rotated files to keep
	MaxAge     int    // days to keep rotated files
	Compress   bool
	LogPerTrip bool // start a fresh log file for each trip
}

const timestampFormat = "06-01-02 15:04:05"

func newFormatter() *logrus.TextFormatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		ForceColors:     true,
	}
}

// tripLogName derives a per-trip file name from the configured base path,
// e.g. logs/hud.log -> logs/hud_2026-03-14_08-12.log.
func tripLogName(basePath string, startedAt time.Time) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	name := fmt.Sprintf("%s_%s%s", stem, startedAt.Format("2006-01-02_15-04"), ext)
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

func buildOutput(config Config, logFilePath string) (io.Writer, error) {
	writers := []io.Writer{os.Stdout}
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	return io.MultiWriter(writers...), nil
}

// install points both the package Logger and the global logrus instance at
// the same output, so component loggers built with logrus.WithField share
// the file writer.
func install(config Config, logFilePath string) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	out, err := buildOutput(config, logFilePath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(newFormatter())
	logger.SetOutput(out)

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter())

	Logger = logger
	currentLogFile = logFilePath
	return nil
}

// Init configures the logging system. Safe to call once at startup.
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	savedConfig = config
	return install(config, config.OutputFile)
}

// InitDefault configures logging with sane defaults when no config is present.
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/hud.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
}

// RotateForTrip switches to a per-trip log file named after the trip start.
// No-op unless LogPerTrip is set and a base output file is configured.
func RotateForTrip(startedAt time.Time) error {
	logMu.Lock()
	defer logMu.Unlock()

	if !savedConfig.LogPerTrip || savedConfig.OutputFile == "" {
		return nil
	}

	logFilePath := tripLogName(savedConfig.OutputFile, startedAt)
	if logFilePath == currentLogFile {
		return nil
	}

	old := currentLogFile
	if err := install(savedConfig, logFilePath); err != nil {
		return err
	}
	if old != "" {
		Logger.Infof("log rotated for trip: %s -> %s", old, logFilePath)
	}
	return nil
}

// Debug logs at DEBUG level.
func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Debug(args...)
	}
}

// Debugf logs a formatted DEBUG message.
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Info logs at INFO level.
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof logs a formatted INFO message.
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warn logs at WARN level.
func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

// Warnf logs a formatted WARN message.
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Error logs at ERROR level.
func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

// Errorf logs a formatted ERROR message.
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField returns an entry carrying one extra field.
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.NewEntry(logrus.New())
}

// WithFields returns an entry carrying extra fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.NewEntry(logrus.New())
}

// GetCurrentLogFile reports the active log file path, empty for console only.
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}
