package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const ChannelBroadcast = "contest:hub:broadcast"

// Envelope carries one hub publish between instances. Payload is the frame
// already encoded for clients.
type Envelope struct {
	SourceInstance string          `json:"sourceInstance"`
	Topic          string          `json:"topic"`
	Once           bool            `json:"once,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Deliverer receives messages published on other instances.
type Deliverer interface {
	Deliver(topic string, payload []byte, once bool) int
}

// Relay implements hub.Relay over a single Redis pub/sub channel.
type Relay struct {
	client     *Client
	pubsub     *redis.PubSub
	instanceID string
	target     Deliverer
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewRelay(client *Client, target Deliverer, m *metrics.Metrics, logger zerolog.Logger) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		client:     client,
		instanceID: uuid.New().String()[:8],
		target:     target,
		metrics:    m,
		logger:     logger.With().Str("component", "relay").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (r *Relay) Start() error {
	r.pubsub = r.client.Subscribe(r.ctx, ChannelBroadcast)

	if _, err := r.pubsub.Receive(r.ctx); err != nil {
		r.pubsub.Close()
		r.pubsub = nil
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go r.listen()

	r.logger.Info().
		Str("instanceId", r.instanceID).
		Str("channel", ChannelBroadcast).
		Msg("Relay started")

	return nil
}

func (r *Relay) Stop() error {
	r.cancel()
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	<-r.done
	return err
}

func (r *Relay) InstanceID() string {
	return r.instanceID
}

func (r *Relay) listen() {
	defer close(r.done)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *Relay) handleMessage(raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.metrics.IncRedisOperation("receive", "error")
		r.logger.Error().Err(err).Msg("Failed to unmarshal relay envelope")
		return
	}

	if env.SourceInstance == r.instanceID {
		return
	}
	r.metrics.IncRedisOperation("receive", "success")

	delivered := r.target.Deliver(env.Topic, env.Payload, env.Once)
	r.logger.Debug().
		Str("topic", env.Topic).
		Str("sourceInstance", env.SourceInstance).
		Int("delivered", delivered).
		Msg("Delivered relayed message")
}

func (r *Relay) Publish(ctx context.Context, topic string, payload []byte, once bool) error {
	data, err := json.Marshal(Envelope{
		SourceInstance: r.instanceID,
		Topic:          topic,
		Once:           once,
		Payload:        payload,
	})
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, ChannelBroadcast, data); err != nil {
		r.metrics.IncRedisOperation("publish", "error")
		return err
	}
	r.metrics.IncRedisOperation("publish", "success")
	return nil
}
