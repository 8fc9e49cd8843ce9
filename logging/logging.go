// Package logging builds the zap loggers shared by the host tools and the engine.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// NewLoggerConfig returns the console config used by every non-test logger:
// no stacktraces, ISO8601 timestamps, colored levels.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger emitting Info and above.
func NewLogger(name string) *zap.SugaredLogger {
	return newLogger(name, zap.InfoLevel)
}

// NewDebugLogger returns a named logger emitting Debug and above.
func NewDebugLogger(name string) *zap.SugaredLogger {
	return newLogger(name, zap.DebugLevel)
}

func newLogger(name string, level zapcore.Level) *zap.SugaredLogger {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		// only reachable with a broken output path
		return zap.NewNop().Sugar()
	}
	return logger.Sugar().Named(name)
}

// NewTestLogger returns a Debug logger that writes through tb.Log.
func NewTestLogger(tb testing.TB) *zap.SugaredLogger {
	return zaptest.NewLogger(tb, zaptest.Level(zap.DebugLevel)).Sugar()
}
