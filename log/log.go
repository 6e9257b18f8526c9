// Package log carries a zap logger through context.Context so that fields
// attached at one stage of a cycle follow every log line below it.
package log

import (
	"context"

	"go.uber.org/zap"
)

type logCtx struct {
	context.Context

	logger  *zap.Logger
	sLogger *zap.SugaredLogger
}

type logType struct{}

func (c *logCtx) Value(k any) any {
	if _, ok := k.(logType); ok {
		return c.logger
	}

	return c.Context.Value(k)
}

func WithLogger(parent context.Context, logger *zap.Logger) context.Context {
	return &logCtx{Context: parent, logger: logger, sLogger: logger.Sugar()}
}

// L returns logger in context, or the zap global logger if no logger is present.
func L(ctx context.Context) *zap.Logger {
	if l, ok := ctx.(*logCtx); ok {
		return l.logger
	}

	if l, _ := ctx.Value(logType{}).(*zap.Logger); l != nil {
		return l
	}

	return zap.L()
}

// S returns sugared version of L.
func S(ctx context.Context) *zap.SugaredLogger {
	if s, ok := ctx.(*logCtx); ok {
		return s.sLogger
	}

	if l, _ := ctx.Value(logType{}).(*zap.Logger); l != nil {
		return l.Sugar()
	}

	return zap.S()
}

func With(ctx context.Context, tags ...zap.Field) context.Context {
	return WithLogger(ctx, L(ctx).With(tags...))
}

func SWith(ctx context.Context, tags ...interface{}) context.Context {
	s := S(ctx).With(tags...)
	return &logCtx{Context: ctx, logger: s.Desugar(), sLogger: s}
}
