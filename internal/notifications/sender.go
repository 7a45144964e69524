package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sink delivers a decision somewhere outside the engine.
type Sink interface {
	Send(ctx context.Context, d Decision) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Decision) error

func (f SinkFunc) Send(ctx context.Context, d Decision) error {
	return f(ctx, d)
}

// LogSink writes decisions to the structured log. Always available.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, d Decision) error {
	s.logger.Info("Arrival decision",
		"decision_id", d.ID,
		"user_id", d.UserID,
		"kind", d.Kind,
		"pois", d.POIs(),
		"reservation_id", d.ReservationID)
	return nil
}

// NamedSink labels a sink for error reporting.
type NamedSink struct {
	Name string
	Sink Sink
}

// Fanout sends to every sink; one failing sink does not stop the others.
type Fanout []NamedSink

func (f Fanout) Send(ctx context.Context, d Decision) error {
	var errs []error
	for _, s := range f {
		if err := s.Sink.Send(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
