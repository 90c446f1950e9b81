package appcache

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface the cache reports through. Backend
// failures are logged here instead of surfacing to callers; a cache must
// never fail a request it is merely accelerating.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a logging field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ZapLogger adapts a zap logger to the Logger interface.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// NewDefaultLogger creates a production zap logger at the given level.
func NewDefaultLogger(level zapcore.Level) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		// The production config only fails on bad sink paths, which the
		// default config does not have.
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("appcache")}
}

func (zl *ZapLogger) Debug(msg string, fields ...Field) {
	zl.logger.Debug(msg, zapFields(fields)...)
}

func (zl *ZapLogger) Info(msg string, fields ...Field) {
	zl.logger.Info(msg, zapFields(fields)...)
}

func (zl *ZapLogger) Warn(msg string, fields ...Field) {
	zl.logger.Warn(msg, zapFields(fields)...)
}

func (zl *ZapLogger) Error(msg string, fields ...Field) {
	zl.logger.Error(msg, zapFields(fields)...)
}

func (zl *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{logger: zl.logger.With(zapFields(fields)...)}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// NoOpLogger discards all messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards everything.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (nol *NoOpLogger) Debug(string, ...Field) {}
func (nol *NoOpLogger) Info(string, ...Field)  {}
func (nol *NoOpLogger) Warn(string, ...Field)  {}
func (nol *NoOpLogger) Error(string, ...Field) {}
func (nol *NoOpLogger) With(...Field) Logger   { return nol }

var (
	_ Logger = (*ZapLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
)
