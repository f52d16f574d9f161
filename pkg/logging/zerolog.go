package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a zerolog-backed logger writing JSON lines to w.
// A nil writer defaults to stdout.
func NewZerologLogger(w io.Writer, level slog.Level) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	return &ZerologLogger{
		logger: zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger(),
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func fieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && err != nil {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}
	return m
}

func (l *ZerologLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug().Fields(fieldMap(fields)).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields ...Field) {
	l.logger.Info().Fields(fieldMap(fields)).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, fields ...Field) {
	l.logger.Warn().Fields(fieldMap(fields)).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, fields ...Field) {
	l.logger.Error().Fields(fieldMap(fields)).Msg(msg)
}

// With returns a child logger carrying the given fields.
func (l *ZerologLogger) With(fields ...Field) Logger {
	return &ZerologLogger{logger: l.logger.With().Fields(fieldMap(fields)).Logger()}
}

// WithContext is a no-op for zerolog; request scoping is done through With.
func (l *ZerologLogger) WithContext(ctx context.Context) Logger {
	return l
}
