/*
The logger package wraps zerolog so that the rest of the codebase never talks
to the logging library directly. Loggers are cheap to derive; each component
gets its own child logger so that log lines can be traced back to the part of
the transport stack that emitted them.
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel string

const (
	Trace LogLevel = "trace"
	Debug LogLevel = "debug"
	Info  LogLevel = "info"
	Error LogLevel = "error"
)

func ToLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return Trace
	case "debug":
		return Debug
	case "error":
		return Error
	default:
		return Info
	}
}

type Config struct {
	// Writers that receive human-readable console output
	ConsoleWriters []io.Writer

	// If set, logs are also written to this file with rotation
	FilePath string

	LogLevel LogLevel
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	// Let's us display stack info on errors
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		return fmt.Sprintf("%+v", err)
	}

	writers := []io.Writer{}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(config.FilePath), err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	for _, cw := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{Out: cw})
	}

	if len(writers) == 0 {
		return nil, fmt.Errorf("refusing to create a logger with nowhere to write")
	}

	level := toZerologLevel(config.LogLevel)
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()

	return &Logger{logger: logger}, nil
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetComponentLogger returns a child logger annotated with the component's
// name, e.g. "Reactor" or "TcpTransport"
func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

// GetTransportLogger returns a child logger tied to a specific transport
// instance so that concurrent connections can be told apart
func (l *Logger) GetTransportLogger(id string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("transport", id).Logger(),
	}
}

func (l *Logger) AddField(key string, value string) {
	l.logger = l.logger.With().Str(key, value).Logger()
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, a ...any) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, a ...any) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...any) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Stack().Err(err).Msg("")
}

func (l *Logger) Errorf(format string, a ...any) {
	l.logger.Error().Stack().Err(fmt.Errorf(format, a...)).Msg("")
}
