package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"staybook/internal/app/consume"
)

// DeadLetterer receives messages that exhausted their retry budget.
type DeadLetterer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

type Consumer struct {
	group      sarama.ConsumerGroup
	handler    consume.Handler
	deadLetter DeadLetterer
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

type ConsumerOptions struct {
	Brokers    []string
	GroupID    string
	Handler    consume.Handler
	DeadLetter DeadLetterer
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
	Config     *sarama.Config
}

func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	g, err := sarama.NewConsumerGroup(opts.Brokers, opts.GroupID, cfg)
	if err != nil {
		return nil, err
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		group:      g,
		handler:    opts.Handler,
		deadLetter: opts.DeadLetter,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     opts.Logger,
	}, nil
}

// Run blocks consuming the topics until the context is cancelled. In-flight
// messages finish handling before the claim loop exits; the read position is
// committed only for acknowledged or dropped messages.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, claimHandler{consumer: c}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type claimHandler struct {
	consumer *Consumer
}

func (h claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if done, err := h.consumer.process(sess.Context(), message); err != nil {
				return err
			} else if done {
				sess.MarkMessage(message, "")
			}
		}
	}
}

// process runs the handler with bounded retries. The returned bool reports
// whether the offset may advance; a false return with nil error means the
// session is shutting down mid-retry and the message must be redelivered.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) (bool, error) {
	env, err := consume.DecodeEnvelope(message.Value)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("dropping malformed message", "topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
		}
		return true, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		verdict, err := c.handler.Handle(ctx, env)
		lastErr = err
		switch verdict {
		case consume.Ack:
			return true, nil
		case consume.Drop:
			if c.logger != nil && err != nil {
				c.logger.Warn("dropping message", "topic", message.Topic, "event_id", env.EventID, "error", err)
			}
			return true, nil
		case consume.Retry:
			if c.logger != nil {
				c.logger.Debug("retrying message", "topic", message.Topic, "event_id", env.EventID, "attempt", attempt+1, "error", err)
			}
			select {
			case <-ctx.Done():
				return false, nil
			case <-time.After(c.backoff):
			}
		}
	}
	return c.sendToDeadLetter(ctx, message, env, lastErr)
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, message *sarama.ConsumerMessage, env consume.Envelope, cause error) (bool, error) {
	if c.deadLetter == nil {
		if c.logger != nil {
			c.logger.Error("retries exhausted, no dead-letter sink", "topic", message.Topic, "event_id", env.EventID, "error", cause)
		}
		return true, nil
	}
	headers := map[string]string{
		"origin-topic": message.Topic,
		"event-id":     env.EventID,
	}
	if cause != nil {
		headers["error"] = cause.Error()
	}
	if err := c.deadLetter.Publish(ctx, message.Topic+".dlq", string(message.Key), message.Value, headers); err != nil {
		// Keep the offset uncommitted so the message is redelivered rather
		// than lost along with its dead-letter copy.
		return false, err
	}
	if c.logger != nil {
		c.logger.Error("message dead-lettered", "topic", message.Topic, "event_id", env.EventID, "error", cause)
	}
	return true, nil
}
