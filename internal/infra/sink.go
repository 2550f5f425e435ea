package infra

import (
	"context"
	"log/slog"

	"amm_go/internal/domain"
)

// LogSink writes every notification to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs n at info level. It never fails.
func (s LogSink) Emit(ctx context.Context, n domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "NOTIFICATION",
		slog.String("kind", n.Kind()),
		slog.String("pool", n.PoolID().Hex()),
		slog.Any("event", n))
	return nil
}

// MultiSink fans a notification out to every sink in order. The first error
// stops delivery and is returned, which aborts the engine operation.
type MultiSink []domain.EventSink

// Emit implements domain.EventSink.
func (m MultiSink) Emit(ctx context.Context, n domain.Notification) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
