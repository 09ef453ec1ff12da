package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSlogAdapter wraps logger. A nil logger writes JSON to stdout.
func NewSlogAdapter(logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	return newSinkAdapter(slogSink{logger: logger})
}

// NewZapAdapter wraps logger. A nil logger discards everything.
func NewZapAdapter(logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return newSinkAdapter(zapSink{logger: logger})
}

// NewZerologAdapter wraps logger.
func NewZerologAdapter(logger zerolog.Logger) Adapter {
	return newSinkAdapter(zerologSink{logger: logger})
}

type slogSink struct {
	logger *slog.Logger
}

func (s slogSink) write(ctx context.Context, level Level, msg string, err error, attrs []attribute.KeyValue) {
	out := make([]slog.Attr, 0, len(attrs)+1)
	if err != nil {
		out = append(out, slog.Any("error", err))
	}

	for _, attr := range attrs {
		out = append(out, slog.Any(string(attr.Key), attrValue(attr)))
	}

	s.logger.LogAttrs(ctx, slogLevel(level), msg, out...)
}

type zapSink struct {
	logger *zap.Logger
}

func (s zapSink) write(_ context.Context, level Level, msg string, err error, attrs []attribute.KeyValue) {
	entry := s.logger.Check(zapLevel(level), msg)
	if entry == nil {
		return
	}

	fields := make([]zap.Field, 0, len(attrs)+1)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	for _, attr := range attrs {
		fields = append(fields, zap.Any(string(attr.Key), attrValue(attr)))
	}

	entry.Write(fields...)
}

type zerologSink struct {
	logger zerolog.Logger
}

func (s zerologSink) write(_ context.Context, level Level, msg string, err error, attrs []attribute.KeyValue) {
	event := s.logger.WithLevel(zerologLevel(level))
	if event == nil {
		return
	}

	if err != nil {
		event = event.Err(err)
	}

	for _, attr := range attrs {
		event = event.Interface(string(attr.Key), attrValue(attr))
	}

	event.Msg(msg)
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zerologLevel(level Level) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
