package consume_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/consume"
	domainbooking "staybook/internal/domain/booking"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("round trips a valid envelope", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		env := consume.NewEnvelope("evt-1", domainbooking.EventNameStatusUpdated, "bk-1", at, json.RawMessage(`{"booking_id":"bk-1","status":"ACCEPTED","at":"2024-05-01T12:00:00Z"}`))
		raw, err := env.Marshal()
		require.NoError(t, err)

		decoded, err := consume.DecodeEnvelope(raw)
		require.NoError(t, err)
		assert.Equal(t, "evt-1", decoded.EventID)
		assert.Equal(t, "bk-1", decoded.BookingID)

		ev, err := decoded.StatusUpdated()
		require.NoError(t, err)
		assert.Equal(t, domainbooking.StatusAccepted, ev.Status)
	})

	t.Run("rejects non-json payloads", func(t *testing.T) {
		_, err := consume.DecodeEnvelope([]byte("not json"))
		assert.ErrorIs(t, err, consume.ErrMalformedEnvelope)
	})

	t.Run("rejects envelopes missing identity fields", func(t *testing.T) {
		for _, raw := range []string{
			`{"type":"booking.requested","booking_id":"bk-1"}`,
			`{"event_id":"evt-1","booking_id":"bk-1"}`,
			`{"event_id":"evt-1","type":"booking.requested"}`,
		} {
			_, err := consume.DecodeEnvelope([]byte(raw))
			assert.ErrorIs(t, err, consume.ErrMalformedEnvelope, raw)
		}
	})

	t.Run("typed decoders enforce the discriminator", func(t *testing.T) {
		env := consume.NewEnvelope("evt-1", domainbooking.EventNameRequested, "bk-1", time.Now(), json.RawMessage(`{}`))
		_, err := env.StatusUpdated()
		assert.ErrorIs(t, err, consume.ErrUnknownEventType)
	})

	t.Run("booking id backfills from the envelope", func(t *testing.T) {
		env := consume.NewEnvelope("evt-1", domainbooking.EventNameStatusUpdated, "bk-9", time.Now(), json.RawMessage(`{"status":"REJECTED"}`))
		ev, err := env.StatusUpdated()
		require.NoError(t, err)
		assert.Equal(t, domainbooking.BookingID("bk-9"), ev.BookingID)
	})
}

func TestMuxRoutesByType(t *testing.T) {
	mux := consume.NewMux(nil)
	mux.Register("known.type", consume.HandlerFunc(func(_ context.Context, env consume.Envelope) (consume.Verdict, error) {
		return consume.Ack, nil
	}))

	verdict, err := mux.Handle(context.Background(), consume.Envelope{EventID: "evt-1", Type: "known.type", BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, consume.Ack, verdict)

	verdict, err = mux.Handle(context.Background(), consume.Envelope{EventID: "evt-2", Type: "mystery.type", BookingID: "bk-1"})
	assert.ErrorIs(t, err, consume.ErrUnknownEventType)
	assert.Equal(t, consume.Drop, verdict)
}
