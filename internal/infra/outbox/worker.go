package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"staybook/internal/app/consume"
)

var (
	ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")
	ErrUnroutableEvent     = errors.New("outbox: no topic for event name")
)

// Pending is one claimed outbox record awaiting publication.
type Pending struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
	Attempts   int
}

// Store is the durable queue the worker drains. Claim returns nil when
// nothing is due.
type Store interface {
	Claim(ctx context.Context, workerID string) (*Pending, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker is the outbox dispatcher: it retries publication with backoff until
// the broker acknowledges, converting a broker outage into bounded delay
// instead of event loss.
type Worker struct {
	Store    Store
	Producer Producer
	// Topics routes event names (booking.requested, booking.status_updated)
	// to broker topics.
	Topics   map[string]string
	Interval time.Duration
	ID       string
	Backoff  []time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				return err
			}
		}
	}
}

// drain publishes claimable records until the store runs dry.
func (w *Worker) drain(ctx context.Context) error {
	for {
		processed, err := w.ProcessOnce(ctx)
		if err != nil || !processed {
			return err
		}
	}
}

// ProcessOnce claims and dispatches a single record. It reports whether a
// record was claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	record, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || record == nil {
		return false, err
	}
	topic, ok := w.Topics[record.Name]
	if !ok {
		_ = w.Store.MarkFailed(ctx, record.ID, w.nextRetry(record.Attempts), ErrUnroutableEvent.Error())
		return true, nil
	}
	payload, err := w.wrap(record)
	if err != nil {
		_ = w.Store.MarkFailed(ctx, record.ID, w.nextRetry(record.Attempts), err.Error())
		return true, nil
	}
	headers := map[string]string{"content-type": "application/json"}
	for k, v := range record.Headers {
		headers[k] = v
	}
	if err := w.Producer.Publish(ctx, topic, record.Aggregate, payload, headers); err != nil {
		_ = w.Store.MarkFailed(ctx, record.ID, w.nextRetry(record.Attempts), err.Error())
		return true, nil
	}
	return true, w.Store.MarkSent(ctx, record.ID)
}

// wrap envelopes the stored domain-event payload for the wire. The outbox
// record id doubles as the consumer-side dedupe key.
func (w *Worker) wrap(record *Pending) ([]byte, error) {
	env := consume.NewEnvelope(record.ID, record.Name, record.Aggregate, record.OccurredAt, record.Payload)
	return env.Marshal()
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}
