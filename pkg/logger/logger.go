package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config logger configuration
type Config struct {
	Level  string // log level: debug, info, warn, error, fatal
	Pretty bool   // pretty print
	JSON   bool   // force JSON output even when Pretty is set

	// File, when set, receives a copy of every entry through a rolling writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	Fatal(msg string, err error, fields map[string]interface{})
	WithComponent(component string) Logger
	WithFields(fields map[string]interface{}) Logger
}

type ZeroLogger struct {
	log       zerolog.Logger
	component string
}

func NewLogger(config Config) Logger {
	// Set output
	var output io.Writer = os.Stdout
	if config.Pretty && !config.JSON {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	if config.File != "" {
		output = zerolog.MultiLevelWriter(output, newFileWriter(config))
	}

	// Log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	return &ZeroLogger{
		log: logger,
	}
}

// NewWithWriter builds a JSON logger on top of w. Used by tests and tools that
// capture output.
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	return &ZeroLogger{
		log: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// newFileWriter rolls the log file by size
func newFileWriter(config Config) io.Writer {
	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    maxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   true,
	}
}

func (l *ZeroLogger) Debug(msg string, fields map[string]interface{}) {
	l.write(l.log.Debug(), msg, nil, fields)
}

func (l *ZeroLogger) Info(msg string, fields map[string]interface{}) {
	l.write(l.log.Info(), msg, nil, fields)
}

func (l *ZeroLogger) Warn(msg string, fields map[string]interface{}) {
	l.write(l.log.Warn(), msg, nil, fields)
}

func (l *ZeroLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.write(l.log.Error(), msg, err, fields)
}

func (l *ZeroLogger) Fatal(msg string, err error, fields map[string]interface{}) {
	l.write(l.log.Fatal(), msg, err, fields)
}

func (l *ZeroLogger) write(event *zerolog.Event, msg string, err error, fields map[string]interface{}) {
	if l.component != "" {
		event = event.Str("component", l.component)
	}
	if err != nil {
		event = event.Err(err)
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// WithComponent tags entries with component, replacing any earlier one
func (l *ZeroLogger) WithComponent(component string) Logger {
	return &ZeroLogger{
		log:       l.log,
		component: component,
	}
}

func (l *ZeroLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &ZeroLogger{
		log:       ctx.Logger(),
		component: l.component,
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &ZeroLogger{log: zerolog.Nop()}
}
