package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// Event records a session leaving the in-memory tier.
type Event struct {
	Timestamp time.Time            `json:"timestamp"`
	SessionID string               `json:"session_id"`
	UserID    int                  `json:"user_id"`
	ContextID int                  `json:"context_id"`
	Reason    domain.RemovalReason `json:"reason"`
}

// FromSession builds an event for s.
func FromSession(s *domain.Session, reason domain.RemovalReason) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: s.ID,
		UserID:    s.UserID,
		ContextID: s.ContextID,
		Reason:    reason,
	}
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// LogSink writes one structured log record per event.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	s.logger.LogAttrs(ctx, s.level, "session removed",
		slog.String("session_id", event.SessionID),
		slog.Int("user_id", event.UserID),
		slog.Int("context_id", event.ContextID),
		slog.String("reason", string(event.Reason)),
		slog.Time("at", event.Timestamp),
	)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
