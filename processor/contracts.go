package processor

import (
	"context"

	"github.com/connectionloops/cloops.nats/log"
	"github.com/connectionloops/cloops.nats/metrics"
)

// Logger is the narrow logging contract the processor depends on. The
// CORE never imports a concrete logging backend; *log.Logger satisfies
// this interface structurally.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...log.Field)
	Info(ctx context.Context, msg string, fields ...log.Field)
	Warn(ctx context.Context, msg string, fields ...log.Field)
	Error(ctx context.Context, msg string, fields ...log.Field)
}

// MetricsSink is the contract the processor records dispatch outcomes
// through. It's an alias of metrics.Sink so callers can pass either name.
type MetricsSink = metrics.Sink

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...log.Field) {}
func (nopLogger) Info(context.Context, string, ...log.Field)  {}
func (nopLogger) Warn(context.Context, string, ...log.Field)  {}
func (nopLogger) Error(context.Context, string, ...log.Field) {}
