package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventPublisher emits lifecycle events for other consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{})
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

type lifecycleEvent struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
	SentAt  time.Time              `json:"sent_at"`
}

// NewEventPublisher publishes events to "<channel>.events.<event>". A nil connection yields a
// publisher that only logs.
func NewEventPublisher(conn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	base := strings.ReplaceAll(strings.TrimSpace(channelBase), ":", ".")
	if base == "" {
		base = "teachmate"
	}
	return &natsEventPublisher{
		conn:    conn,
		subject: base + ".events",
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) Publish(ctx context.Context, event string, payload map[string]interface{}) {
	if p.conn == nil {
		p.logger.Debug().Str("event", event).Msg("event broker disabled")
		return
	}
	if ctx.Err() != nil {
		return
	}

	body, err := json.Marshal(lifecycleEvent{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	if err := p.conn.Publish(p.subject+"."+event, body); err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to publish event")
	}
}
