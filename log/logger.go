// Package log provides the structured logger used throughout this module.
// It wraps go.uber.org/zap behind a narrow, context-aware API so the CORE
// packages (processor, lock, registry) can depend on a small Logger
// contract instead of zap directly.
package log

import (
	"context"

	"github.com/connectionloops/cloops.nats/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// A Logger provides fast, leveled, structured logging. All methods are
// safe for concurrent use.
type Logger struct {
	log *zap.Logger
}

// New builds a production logging configuration: JSON encoding, stderr
// output, sampling, stacktraces on Error and above. The minimum level is
// resolved from CLOOPS_LOG_LEVEL (default INFO) unless overridden via
// WithLevel.
func New(opts ...func(*Option)) (*Logger, error) {
	level, err := parse(config.LookupEnv("CLOOPS_LOG_LEVEL", "INFO"))
	if err != nil {
		return nil, err
	}

	options := &Option{Level: level}
	for _, o := range opts {
		o(options)
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapcore.Level(options.Level)),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:       "timestamp",
			LevelKey:      "level",
			MessageKey:    "message",
			StacktraceKey: "stacktrace",
			LineEnding:    zapcore.DefaultLineEnding,
			EncodeLevel:   zapcore.LowercaseLevelEncoder,
			EncodeTime:    zapcore.ISO8601TimeEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{log: zl}, nil
}

// NewNop returns a no-op Logger. It never writes out logs and never
// allocates fields; it's the default for CORE components until a caller
// supplies a real one.
func NewNop() *Logger {
	return &Logger{log: zap.NewNop()}
}

// Close flushes any buffered log entries. Callers should call Close before
// exiting.
func (l *Logger) Close() {
	if l.log == nil {
		return
	}
	_ = l.log.Sync() //nolint:errcheck
}

// Debug logs at DebugLevel.
func (l *Logger) Debug(ctx context.Context, message string, fields ...Field) {
	l.log0(l.log.Debug, ctx, message, fields...)
}

// Info logs at InfoLevel.
func (l *Logger) Info(ctx context.Context, message string, fields ...Field) {
	l.log0(l.log.Info, ctx, message, fields...)
}

// Warn logs at WarnLevel.
func (l *Logger) Warn(ctx context.Context, message string, fields ...Field) {
	l.log0(l.log.Warn, ctx, message, fields...)
}

// Error logs at ErrorLevel.
func (l *Logger) Error(ctx context.Context, message string, fields ...Field) {
	l.log0(l.log.Error, ctx, message, fields...)
}

// Fatal logs at FatalLevel and then calls os.Exit(1), even if FatalLevel
// logging is disabled. Callers that need to abort without killing the
// process (tests, embedders) should not call this directly - route through
// processor.Fatal instead.
func (l *Logger) Fatal(ctx context.Context, message string, fields ...Field) {
	l.log0(l.log.Fatal, ctx, message, fields...)
}

func (l *Logger) log0(fn func(msg string, fields ...Field), ctx context.Context, msg string, fields ...Field) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		fn(msg, fields...)
		return
	}
	fn(msg, append(fields,
		String("trace_id", span.SpanContext().TraceID().String()),
		String("span_id", span.SpanContext().SpanID().String()),
	)...)
}
