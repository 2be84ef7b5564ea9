package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a map of fields to add to log entries
type Fields map[string]any

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// sync.Once for zerolog global state shared by every logger instance
var timeFormatOnce sync.Once

// Logger wraps zerolog with the node's output and rotation settings.
type Logger struct {
	*zerolog.Logger
	config  *Config
	closers []io.Closer
}

// Config holds logger configuration
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error)
	Level string `json:"level" yaml:"level"`

	// Format is the output format (json, console)
	Format string `json:"format" yaml:"format"`

	// TimestampFormat for logs
	TimestampFormat string `json:"timestamp_format" yaml:"timestamp_format"`

	// Console output settings
	Console ConsoleConfig `json:"console" yaml:"console"`

	// File output settings
	File FileConfig `json:"file" yaml:"file"`

	// Fields are default fields added to all logs
	Fields Fields `json:"fields" yaml:"fields"`

	// EnableCaller adds caller information to logs
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// AsyncWrite uses a diode writer so logging never blocks ring maintenance
	AsyncWrite bool `json:"async_write" yaml:"async_write"`

	// BufferSize for async writer (in messages)
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// ConsoleConfig for console output
type ConsoleConfig struct {
	Enable     bool   `json:"enable" yaml:"enable"`
	NoColor    bool   `json:"no_color" yaml:"no_color"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
	Output     string `json:"output" yaml:"output"` // stdout, stderr
}

// FileConfig for rotated file output
type FileConfig struct {
	Enable     bool   `json:"enable" yaml:"enable"`
	Path       string `json:"path" yaml:"path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"` // megabytes
	MaxAge     int    `json:"max_age" yaml:"max_age"`   // days
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           "info",
		Format:          FormatJSON,
		TimestampFormat: time.RFC3339Nano,
		Console: ConsoleConfig{
			Enable:     true,
			TimeFormat: "15:04:05.000",
			Output:     "stderr",
		},
		File: FileConfig{
			Path:       "chordring.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
		Fields:     make(Fields),
		BufferSize: 10000,
	}
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	zl := zerolog.Nop()
	return &Logger{Logger: &zl, config: DefaultConfig()}
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		writers []io.Writer
		closers []io.Closer
	)

	if config.Console.Enable {
		var output io.Writer = os.Stderr
		if config.Console.Output == "stdout" {
			output = os.Stdout
		}

		switch config.Format {
		case FormatConsole:
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: config.Console.TimeFormat,
				NoColor:    config.Console.NoColor,
			})
		case FormatJSON, "":
			writers = append(writers, output)
		default:
			return nil, fmt.Errorf("unsupported log format %q", config.Format)
		}
	}

	if config.File.Enable {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file output enabled without a path")
		}
		if err := os.MkdirAll(filepath.Dir(config.File.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSize,
			MaxAge:     config.File.MaxAge,
			MaxBackups: config.File.MaxBackups,
			LocalTime:  true,
			Compress:   config.File.Compress,
		}
		writers = append(writers, fileWriter)
		closers = append(closers, fileWriter)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if config.AsyncWrite {
		dw := diode.NewWriter(writer, config.BufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "Logger dropped %d messages\n", missed)
		})
		writer = dw
		// flush the diode before the files underneath it close
		closers = append([]io.Closer{dw}, closers...)
	}

	if config.TimestampFormat != "" {
		timeFormatOnce.Do(func() {
			zerolog.TimeFieldFormat = config.TimestampFormat
		})
	}

	zctx := zerolog.New(writer).Level(level).With().Timestamp()
	if config.EnableCaller {
		zctx = zctx.Caller()
	}
	for k, v := range config.Fields {
		zctx = zctx.Interface(k, v)
	}

	zl := zctx.Logger()
	return &Logger{
		Logger:  &zl,
		config:  config,
		closers: closers,
	}, nil
}

// WithFields creates a child logger with additional fields.
// The child shares the parent's writers; only the parent should be closed.
func (l *Logger) WithFields(fields Fields) *Logger {
	zctx := l.Logger.With()
	for k, v := range fields {
		zctx = zctx.Interface(k, v)
	}

	zl := zctx.Logger()
	return &Logger{
		Logger: &zl,
		config: l.config,
	}
}

// UpdateLevel returns a copy of the logger with a different minimum level.
func (l *Logger) UpdateLevel(level string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zl := l.Logger.Level(lvl)
	return &Logger{
		Logger:  &zl,
		config:  l.config,
		closers: l.closers,
	}, nil
}

// Close flushes async output and closes rotated log files.
func (l *Logger) Close() error {
	var err error
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	l.closers = nil
	return err
}
