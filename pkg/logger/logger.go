package logger

import (
	"context"

	"go.uber.org/zap"

	"schoolnotify/pkg/trace"
)

var Log *zap.Logger

// NewLogger builds the process logger. "local" gets the human readable
// development encoder, every other environment the JSON production one.
func NewLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
