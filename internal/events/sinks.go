package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// LogSink writes every event to the structured log. It is always wired so the
// activity trail survives even when no broker or database sink is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "activity_log").Logger()}
}

func (s *LogSink) Deliver(_ context.Context, event Event) error {
	s.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("user_id", event.UserID).
		Time("event_time", event.Timestamp).
		Interface("payload", event.Payload).
		Msg("pipeline event")
	return nil
}

// Store persists events durably. Implemented by the pipeline event repository.
type Store interface {
	SaveEvent(ctx context.Context, event Event) error
}

// StoreSink writes events to a Store.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Deliver(ctx context.Context, event Event) error {
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

// NATSSink publishes events as JSON on a per-type subject, e.g.
// "sqlquest.events.grading_completed".
type NATSSink struct {
	conn          *nats.Conn
	subjectPrefix string
}

func NewNATSSink(conn *nats.Conn, subjectPrefix string) *NATSSink {
	if subjectPrefix == "" {
		subjectPrefix = "sqlquest.events"
	}
	return &NATSSink{conn: conn, subjectPrefix: subjectPrefix}
}

func (s *NATSSink) Deliver(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, event.Type)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
