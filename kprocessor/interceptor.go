package kprocessor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Handler delivers one message to a processor or sink.
type Handler func(ctx context.Context, stage string, from PortHandle, msg Message) (Control, error)

// Interceptor wraps message delivery with custom logic.
// Signature matches gRPC's interceptor pattern: (ctx, req, handler) -> result.
type Interceptor func(ctx context.Context, stage string, from PortHandle, msg Message, next Handler) (Control, error)

// Chain combines interceptors into one. Interceptors execute outer-to-inner:
// the first interceptor wraps all others.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(ctx context.Context, stage string, from PortHandle, msg Message, final Handler) (Control, error) {
		handler := final
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			next := handler
			handler = func(ctx context.Context, stage string, from PortHandle, msg Message) (Control, error) {
				return interceptor(ctx, stage, from, msg, next)
			}
		}
		return handler(ctx, stage, from, msg)
	}
}

// LoggingInterceptor logs every delivery at debug level and failures at error
// level.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	return func(ctx context.Context, stage string, from PortHandle, msg Message, next Handler) (Control, error) {
		logger.DebugContext(ctx, "Processing message",
			"stage", stage,
			"port", from,
			"message", msg,
		)

		ctrl, err := next(ctx, stage, from, msg)
		if err != nil {
			logger.ErrorContext(ctx, "Processing failed", "stage", stage, "message", msg, "error", err)
		}
		return ctrl, err
	}
}

// Stats accumulates counters maintained by MetricsInterceptor.
type Stats struct {
	Messages       atomic.Int64
	Commits        atomic.Int64
	Errors         atomic.Int64
	ProcessingTime atomic.Int64
}

// MetricsInterceptor tracks message counts and processing time.
func MetricsInterceptor(stats *Stats) Interceptor {
	return func(ctx context.Context, stage string, from PortHandle, msg Message, next Handler) (Control, error) {
		start := time.Now()
		ctrl, err := next(ctx, stage, from, msg)
		stats.ProcessingTime.Add(int64(time.Since(start)))

		stats.Messages.Add(1)
		if msg.Kind == KindCommit {
			stats.Commits.Add(1)
		}
		if err != nil {
			stats.Errors.Add(1)
		}
		return ctrl, err
	}
}
