package entitlement

import (
	"context"
	"log/slog"
)

// Logging helpers tagging every record with the engine component and the
// entry point that produced it.

func (e *Engine) logDebug(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	e.log(ctx, slog.LevelDebug, action, msg, attrs...)
}

func (e *Engine) logInfo(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	e.log(ctx, slog.LevelInfo, action, msg, attrs...)
}

func (e *Engine) logWarn(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	e.log(ctx, slog.LevelWarn, action, msg, attrs...)
}

func (e *Engine) logError(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	e.log(ctx, slog.LevelError, action, msg, attrs...)
}

func (e *Engine) log(ctx context.Context, level slog.Level, action, msg string, attrs ...slog.Attr) {
	if e.logger == nil {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.String("action", action))
	all = append(all, attrs...)
	e.logger.LogAttrs(ctx, level, msg, all...)
}
