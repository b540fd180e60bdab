package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const relayPublishTimeout = 2 * time.Second

// clusterRelay forwards in-process events to the other API replicas. It uses NATS when a
// connection is available and Redis pub/sub otherwise, never both, so each replica sees an
// event once. Events sent by this replica are not handed back to it.
type clusterRelay struct {
	origin  string
	channel string
	redis   *redis.Client
	nats    *nats.Conn
	logger  zerolog.Logger
}

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// newClusterRelay returns a relay for topic under base, e.g. "teachmate" and "chat" give the
// Redis channel teachmate:chat or the NATS subject teachmate.chat. Without a base or any
// transport the relay is a no-op.
func newClusterRelay(base, topic string, redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) *clusterRelay {
	r := &clusterRelay{
		origin: uuid.NewString(),
		logger: logger.With().Str("relay", topic).Logger(),
	}
	if base == "" {
		return r
	}
	switch {
	case natsConn != nil:
		r.nats = natsConn
		r.channel = strings.ReplaceAll(base, ":", ".") + "." + topic
	case redisClient != nil:
		r.redis = redisClient
		r.channel = base + ":" + topic
	}
	return r
}

func (r *clusterRelay) enabled() bool {
	return r.channel != ""
}

func (r *clusterRelay) publish(ctx context.Context, event interface{}) error {
	if !r.enabled() {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if r.nats != nil {
		return r.nats.Publish(r.channel, data)
	}
	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	return r.redis.Publish(ctx, r.channel, data).Err()
}

// listen delivers remote events to handle until ctx ends. It returns once subscribed.
func (r *clusterRelay) listen(ctx context.Context, handle func(json.RawMessage)) {
	if !r.enabled() {
		return
	}
	deliver := func(data []byte) {
		var envelope relayEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			r.logger.Warn().Err(err).Msg("dropping malformed relay event")
			return
		}
		if envelope.Origin == r.origin {
			return
		}
		handle(envelope.Payload)
	}

	if r.nats != nil {
		sub, err := r.nats.Subscribe(r.channel, func(msg *nats.Msg) { deliver(msg.Data) })
		if err != nil {
			r.logger.Error().Err(err).Str("subject", r.channel).Msg("nats subscribe failed")
			return
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				r.logger.Warn().Err(err).Msg("nats drain failed")
			}
		}()
		return
	}

	pubsub := r.redis.Subscribe(ctx, r.channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, redis.ErrClosed) {
					r.logger.Error().Err(err).Str("channel", r.channel).Msg("redis subscription ended")
				}
				return
			}
			deliver([]byte(msg.Payload))
		}
	}()
}
