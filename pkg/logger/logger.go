package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// OutputFormat represents the log output format
type OutputFormat string

const (
	JSONFormat    OutputFormat = "json"
	ConsoleFormat OutputFormat = "console"
)

// DefaultFilename is the diagnostics file written next to user documents.
const DefaultFilename = "debug.log"

// Config holds all configuration options for the logger
type Config struct {
	Level  LogLevel     `json:"level" yaml:"level"`
	Format OutputFormat `json:"format" yaml:"format"`

	// Console output goes to stderr so command output stays clean.
	EnableConsole bool `json:"enable_console" yaml:"enable_console"`

	// File output configuration
	EnableFile bool   `json:"enable_file" yaml:"enable_file"`
	Filename   string `json:"filename" yaml:"filename"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // megabytes
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // number of backups
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // days
	Compress   bool   `json:"compress" yaml:"compress"`

	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`
	Development  bool `json:"development" yaml:"development"`

	// Custom fields to add to every log entry
	InitialFields map[string]interface{} `json:"initial_fields" yaml:"initial_fields"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:         InfoLevel,
		Format:        ConsoleFormat,
		EnableConsole: true,
		EnableFile:    false,
		Filename:      DefaultFilename,
		MaxSize:       10, // 10MB
		MaxBackups:    3,
		MaxAge:        30, // 30 days
		Compress:      true,
		EnableCaller:  false,
		Development:   false,
		InitialFields: make(map[string]interface{}),
	}
}

// DevelopmentConfig returns a development-friendly configuration
func DevelopmentConfig() *Config {
	config := DefaultConfig()
	config.Level = DebugLevel
	config.EnableCaller = true
	config.Development = true
	return config
}

// Logger wraps zap.Logger and owns the log files it writes to.
type Logger struct {
	*zap.Logger
	config  *Config
	closers []io.Closer
}

// New creates a new logger with the given configuration
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var (
		cores   []zapcore.Core
		closers []io.Closer
	)
	level := parseLogLevel(config.Level)

	if config.EnableConsole {
		cores = append(cores, zapcore.NewCore(
			newEncoder(config, config.Format == JSONFormat),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	if config.EnableFile {
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer := &lumberjack.Logger{
			Filename:   config.Filename,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		closers = append(closers, writer)
		// Files are always JSON so they can be machine read.
		cores = append(cores, zapcore.NewCore(newEncoder(config, true), zapcore.AddSync(writer), level))
	}

	options := []zap.Option{}
	if config.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if config.Development {
		options = append(options, zap.Development())
	}
	if len(config.InitialFields) > 0 {
		fields := make([]zap.Field, 0, len(config.InitialFields))
		for key, value := range config.InitialFields {
			fields = append(fields, zap.Any(key, value))
		}
		options = append(options, zap.Fields(fields...))
	}

	return &Logger{
		Logger:  zap.New(zapcore.NewTee(cores...), options...),
		config:  config,
		closers: closers,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

func newEncoder(config *Config, json bool) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if json {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// parseLogLevel converts string log level to zapcore.Level
func parseLogLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithComponent creates a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With(zap.String("component", component)),
		config: l.config,
	}
}

// Close flushes buffered entries and closes log files. Loggers derived
// with WithComponent share the files of their parent and need no Close.
func (l *Logger) Close() error {
	// Syncing a terminal fails on some platforms; that is not worth reporting.
	_ = l.Sync()

	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
