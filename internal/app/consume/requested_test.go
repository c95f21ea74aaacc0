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
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/infra/storage/memory"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func requestedEnvelope(t *testing.T, eventID, bookingID string) consume.Envelope {
	t.Helper()
	dr, err := daterange.New(day("2024-06-01"), day("2024-06-04"))
	require.NoError(t, err)
	ev := domainbooking.BookingRequested{
		BookingID:  domainbooking.BookingID(bookingID),
		PropertyID: "prop-1",
		TravelerID: "traveler-1",
		OwnerID:    "owner-1",
		Range:      dr,
		Guests:     2,
		TotalPrice: money.Must(30000, "USD"),
		At:         day("2024-05-01"),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return consume.NewEnvelope(eventID, domainbooking.EventNameRequested, bookingID, ev.At, payload)
}

func TestRequestedProjectorCreatesProjection(t *testing.T) {
	factory := memory.NewUoWFactory()
	projector := &consume.RequestedProjector{
		UoWFactory: factory,
		Inbox:      memory.NewInbox(),
	}

	verdict, err := projector.Handle(context.Background(), requestedEnvelope(t, "evt-1", "bk-1"))
	require.NoError(t, err)
	assert.Equal(t, consume.Ack, verdict)

	stored, err := factory.Bookings.ByID(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, stored.Status)
	assert.Equal(t, "traveler-1", stored.TravelerID)
	assert.Empty(t, stored.PendingEvents(), "a projection must not re-announce the create")
}

func TestRequestedProjectorIsIdempotent(t *testing.T) {
	factory := memory.NewUoWFactory()
	projector := &consume.RequestedProjector{
		UoWFactory: factory,
		Inbox:      memory.NewInbox(),
	}

	env := requestedEnvelope(t, "evt-1", "bk-1")
	for i := 0; i < 3; i++ {
		verdict, err := projector.Handle(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, consume.Ack, verdict)
	}

	list, err := factory.Bookings.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRequestedProjectorDropsBadPayloads(t *testing.T) {
	projector := &consume.RequestedProjector{
		UoWFactory: memory.NewUoWFactory(),
		Inbox:      memory.NewInbox(),
	}

	env := consume.NewEnvelope("evt-1", domainbooking.EventNameStatusUpdated, "bk-1", day("2024-05-01"), json.RawMessage(`{}`))
	verdict, err := projector.Handle(context.Background(), env)
	assert.Error(t, err)
	assert.Equal(t, consume.Drop, verdict)

	// Structurally invalid event: zero guests can never become a booking.
	invalid := requestedEnvelope(t, "evt-2", "bk-2")
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(invalid.Data, &raw))
	raw["guests"] = json.RawMessage("0")
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	invalid.Data = data

	verdict, err = projector.Handle(context.Background(), invalid)
	assert.ErrorIs(t, err, domainbooking.ErrInvalidGuests)
	assert.Equal(t, consume.Drop, verdict)
}
