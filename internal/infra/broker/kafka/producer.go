package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ErrPublishUnavailable is returned when the broker did not acknowledge a
// message within the configured bound. The event is never silently dropped:
// callers leave it in the outbox for a later attempt.
var ErrPublishUnavailable = errors.New("kafka: publish unavailable")

type Producer struct {
	sync sarama.SyncProducer
}

// NewProducer builds an idempotent sync producer that blocks until the
// whole ISR acknowledged the write or the timeout elapsed.
func NewProducer(brokers []string, timeout time.Duration, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true
	if timeout > 0 {
		cfg.Producer.Timeout = timeout
		cfg.Net.DialTimeout = timeout
		cfg.Net.WriteTimeout = timeout
	}
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync}, nil
}

// Publish sends one message keyed for per-booking ordering.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishUnavailable, err)
	}
	var hs []sarama.RecordHeader
	for k, v := range headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishUnavailable, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
