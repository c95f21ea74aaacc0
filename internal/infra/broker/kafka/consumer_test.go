package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/consume"
)

type scriptedHandler struct {
	verdict consume.Verdict
	err     error
	calls   int
	onCall  func(attempt int)
}

func (h *scriptedHandler) Handle(context.Context, consume.Envelope) (consume.Verdict, error) {
	h.calls++
	if h.onCall != nil {
		h.onCall(h.calls)
	}
	return h.verdict, h.err
}

type deadLetterSink struct {
	topics  []string
	keys    []string
	headers []map[string]string
	fail    error
}

func (d *deadLetterSink) Publish(_ context.Context, topic, key string, _ []byte, headers map[string]string) error {
	if d.fail != nil {
		return d.fail
	}
	d.topics = append(d.topics, topic)
	d.keys = append(d.keys, key)
	d.headers = append(d.headers, headers)
	return nil
}

func statusMessage(t *testing.T) *sarama.ConsumerMessage {
	t.Helper()
	env := consume.NewEnvelope("evt-1", "booking.status_updated", "bk-1",
		time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), []byte(`{"booking_id":"bk-1","status":"ACCEPTED"}`))
	payload, err := env.Marshal()
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "booking-updates", Key: []byte("bk-1"), Value: payload}
}

func TestProcessRetriesThenDeadLetters(t *testing.T) {
	handler := &scriptedHandler{verdict: consume.Retry, err: errors.New("projection missing")}
	sink := &deadLetterSink{}
	c := &Consumer{handler: handler, deadLetter: sink, maxRetries: 2, backoff: time.Millisecond}

	done, err := c.process(context.Background(), statusMessage(t))
	require.NoError(t, err)
	assert.True(t, done, "the offset advances once the copy is parked")
	assert.Equal(t, 3, handler.calls, "initial attempt plus the retry budget")

	require.Len(t, sink.topics, 1)
	assert.Equal(t, "booking-updates.dlq", sink.topics[0])
	assert.Equal(t, "bk-1", sink.keys[0])
	assert.Equal(t, "booking-updates", sink.headers[0]["origin-topic"])
	assert.Equal(t, "evt-1", sink.headers[0]["event-id"])
	assert.Equal(t, "projection missing", sink.headers[0]["error"])
}

func TestProcessHoldsOffsetOnShutdownMidRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &scriptedHandler{verdict: consume.Retry, err: errors.New("projection missing")}
	handler.onCall = func(int) { cancel() }
	sink := &deadLetterSink{}
	c := &Consumer{handler: handler, deadLetter: sink, maxRetries: 5, backoff: time.Minute}

	done, err := c.process(ctx, statusMessage(t))
	require.NoError(t, err)
	assert.False(t, done, "an uncommitted message is redelivered after restart")
	assert.Equal(t, 1, handler.calls)
	assert.Empty(t, sink.topics, "shutdown is not retry exhaustion")
}

func TestProcessHoldsOffsetWhenDeadLetterFails(t *testing.T) {
	handler := &scriptedHandler{verdict: consume.Retry, err: errors.New("projection missing")}
	sink := &deadLetterSink{fail: errors.New("broker down")}
	c := &Consumer{handler: handler, deadLetter: sink, maxRetries: 0, backoff: time.Millisecond}

	done, err := c.process(context.Background(), statusMessage(t))
	assert.Error(t, err)
	assert.False(t, done, "neither copy landed, so the message must come back")
}

func TestProcessAcksWithoutRetryOnDrop(t *testing.T) {
	handler := &scriptedHandler{verdict: consume.Drop, err: errors.New("unknown status")}
	sink := &deadLetterSink{}
	c := &Consumer{handler: handler, deadLetter: sink, maxRetries: 3, backoff: time.Millisecond}

	done, err := c.process(context.Background(), statusMessage(t))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, handler.calls)
	assert.Empty(t, sink.topics)
}

func TestProcessDropsMalformedMessage(t *testing.T) {
	handler := &scriptedHandler{verdict: consume.Ack}
	c := &Consumer{handler: handler, maxRetries: 3, backoff: time.Millisecond}
	message := &sarama.ConsumerMessage{Topic: "booking-updates", Value: []byte("not json")}

	done, err := c.process(context.Background(), message)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, handler.calls, "garbage never reaches the handler")
}

func TestProcessDeadLettersWithoutSink(t *testing.T) {
	handler := &scriptedHandler{verdict: consume.Retry, err: errors.New("projection missing")}
	c := &Consumer{handler: handler, maxRetries: 0, backoff: time.Millisecond}

	done, err := c.process(context.Background(), statusMessage(t))
	require.NoError(t, err)
	assert.True(t, done, "without a sink the message is logged and released")
}
