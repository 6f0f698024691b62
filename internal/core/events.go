package core

import (
	"context"
	"log/slog"
	"sync"

	"distributor/pkg/domain"
)

// EventSink receives the events of committed invocations.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, events []domain.Event) error
}

// LogSink writes each event to a logger.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(log *slog.Logger) *LogSink { return &LogSink{log: log} }

// Name identifies the sink in metrics and logs.
func (s *LogSink) Name() string { return "log" }

// Deliver logs every event.
func (s *LogSink) Deliver(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		s.log.Info("event",
			"id", e.ID,
			"contract", e.Contract.String(),
			"topic", e.Topic,
			"key", e.Key.String(),
			"payload", int64(e.Payload),
			"height", e.Height,
		)
	}
	return nil
}

// MemorySink keeps the most recent events in memory.
type MemorySink struct {
	mu     sync.RWMutex
	limit  int
	events []domain.Event
}

// NewMemorySink keeps up to limit events; limit <= 0 keeps everything.
func NewMemorySink(limit int) *MemorySink { return &MemorySink{limit: limit} }

// Name identifies the sink in metrics and logs.
func (s *MemorySink) Name() string { return "memory" }

// Deliver appends events, evicting the oldest beyond the limit.
func (s *MemorySink) Deliver(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append([]domain.Event(nil), s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

// Events returns the retained events oldest first, optionally filtered by topic.
func (s *MemorySink) Events(topic string) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		if topic == "" || e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
