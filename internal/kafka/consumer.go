package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// A message whose handler hit a persistence error is retried with linear
	// backoff up to RetryMaxBackoff until it succeeds or the consumer stops.
	// Other handler errors are logged and committed.
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
}

type EventHandler func(ctx context.Context, message kafka.Message) error

type Consumer struct {
	cfg      ConsumerConfig
	readers  []*kafka.Reader
	handlers map[string]EventHandler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, m *metrics.Metrics, logger zerolog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.RetryMaxBackoff < cfg.RetryBackoff {
		cfg.RetryMaxBackoff = 30 * cfg.RetryBackoff
	}

	readers := make([]*kafka.Reader, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        1 * time.Second,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
		})
		readers = append(readers, reader)
	}

	return &Consumer{
		cfg:      cfg,
		readers:  readers,
		handlers: make(map[string]EventHandler),
		metrics:  m,
		logger:   logger.With().Str("component", "kafka").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Consumer) RegisterHandler(topic string, handler EventHandler) {
	c.handlers[topic] = handler
}

func (c *Consumer) Start() {
	for _, reader := range c.readers {
		c.wg.Add(1)
		go c.consumeFromReader(reader)
	}
	c.logger.Info().Int("topics", len(c.readers)).Msg("Kafka consumer started")
}

func (c *Consumer) consumeFromReader(reader *kafka.Reader) {
	defer c.wg.Done()
	topic := reader.Config().Topic
	c.logger.Info().Str("topic", topic).Msg("Starting consumer for topic")

	for {
		msg, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to fetch message")
			if !sleepCtx(c.ctx, time.Second) {
				return
			}
			continue
		}

		c.logger.Debug().
			Str("topic", topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Received message")

		if !c.process(c.ctx, topic, msg) {
			return
		}

		if err := reader.CommitMessages(c.ctx, msg); err != nil && c.ctx.Err() == nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to commit message")
		}
	}
}

// process runs the handler for msg, retrying persistence failures for as long
// as ctx lives. It returns false only when ctx ended before the message was
// settled, in which case the message must not be committed.
func (c *Consumer) process(ctx context.Context, topic string, msg kafka.Message) bool {
	handler, ok := c.handlers[topic]
	if !ok {
		c.logger.Warn().Str("topic", topic).Msg("No handler registered for topic")
		c.metrics.IncKafkaMessage(topic, "skipped")
		return true
	}

	for attempt := 0; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			c.metrics.IncKafkaMessage(topic, "success")
			return true
		}

		if !apperrors.IsPersistence(err) {
			c.metrics.IncKafkaMessage(topic, "error")
			c.logger.Error().Err(err).
				Str("topic", topic).
				Int64("offset", msg.Offset).
				Int("attempts", attempt+1).
				Msg("Handler failed, skipping message")
			return true
		}

		c.metrics.IncKafkaMessage(topic, "retry")
		c.logger.Warn().Err(err).
			Str("topic", topic).
			Int("attempt", attempt+1).
			Msg("Handler failed, retrying")
		if !sleepCtx(ctx, c.backoff(attempt)) {
			return false
		}
	}
}

func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBackoff * time.Duration(attempt+1)
	if d > c.cfg.RetryMaxBackoff || d <= 0 {
		return c.cfg.RetryMaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	var lastErr error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = err
			c.logger.Error().Err(err).Msg("Failed to close reader")
		}
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return lastErr
}
