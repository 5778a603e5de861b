package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/jnsquire/zetro"
)

// LoggingInterceptor creates an interceptor that logs operations using slog.
// It logs the start and end of each operation, including duration and error
// status. Operations batched in one envelope share a request id, so their
// log lines can be correlated.
func LoggingInterceptor(logger *slog.Logger) zetro.UnaryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, info *zetro.RPCInfo, req any, next zetro.HandlerFunc) (any, error) {
		start := time.Now()

		logger.InfoContext(ctx, "operation started",
			slog.String("route", info.Route.Name),
			slog.String("kind", info.Route.Kind.String()),
			slog.String("request_id", info.RequestID),
		)

		res, err := next(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "operation failed",
				slog.String("route", info.Route.Name),
				slog.String("request_id", info.RequestID),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "operation completed",
				slog.String("route", info.Route.Name),
				slog.String("request_id", info.RequestID),
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}
