package logging

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyp3rd/onecollector/pkg/config"
)

// Level orders the severities understood by the adapters.
type Level int

const (
	// LevelDebug enables every message.
	LevelDebug Level = iota - 1
	// LevelInfo is the default threshold.
	LevelInfo
	// LevelWarn drops debug and info messages.
	LevelWarn
	// LevelError keeps only errors.
	LevelError
)

// ParseLevel maps a level name to a Level, defaulting to LevelInfo.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// FromConfig builds an Adapter writing to stdout from logging configuration.
func FromConfig(cfg config.LoggingConfig) Adapter {
	return FromConfigWriter(cfg, os.Stdout)
}

// FromConfigWriter builds an Adapter from logging configuration writing to out.
// "std" selects slog's text handler; unknown adapters fall back to slog.
func FromConfigWriter(cfg config.LoggingConfig, out io.Writer) Adapter {
	level := ParseLevel(cfg.Level)
	text := strings.EqualFold(cfg.Format, "text")

	var s sink

	switch strings.ToLower(cfg.Adapter) {
	case "zap":
		s = zapSink{logger: newZapLogger(level, text, out)}
	case "zerolog":
		s = zerologSink{logger: newZerologLogger(level, text, out)}
	case "std":
		s = slogSink{logger: newSlogLogger(level, true, out)}
	default:
		s = slogSink{logger: newSlogLogger(level, text, out)}
	}

	adapter := newSinkAdapter(s)
	adapter.min = level
	adapter.ratio = max(cfg.SampleRatio, 0)

	return adapter
}

func newSlogLogger(level Level, text bool, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	if text {
		return slog.New(slog.NewTextHandler(out, opts))
	}

	return slog.New(slog.NewJSONHandler(out, opts))
}

func newZapLogger(level Level, text bool, out io.Writer) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if text {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), zapLevel(level)))
}

func newZerologLogger(level Level, text bool, out io.Writer) zerolog.Logger {
	if text {
		out = zerolog.ConsoleWriter{Out: out}
	}

	return zerolog.New(out).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Logger()
}

// sampled reports whether a debug or info event survives ratio.
func sampled(ratio float64) bool {
	switch {
	case ratio >= 1:
		return true
	case ratio <= 0:
		return false
	default:
		return randomFloat64() <= ratio
	}
}

func randomFloat64() float64 {
	var randomBytes [8]byte

	_, err := rand.Read(randomBytes[:])
	if err != nil {
		return 1
	}

	n := binary.BigEndian.Uint64(randomBytes[:])

	return float64(n) / float64(math.MaxUint64)
}
