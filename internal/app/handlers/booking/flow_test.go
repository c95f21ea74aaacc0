package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/commands"
	"staybook/internal/app/consume"
	bookingapp "staybook/internal/app/handlers/booking"
	domainbooking "staybook/internal/domain/booking"
	infraoutbox "staybook/internal/infra/outbox"
	"staybook/internal/infra/storage/memory"
)

// capturedBroker collects published messages per topic, standing in for the
// real broker in protocol tests.
type capturedBroker struct {
	messages map[string][][]byte
}

func newCapturedBroker() *capturedBroker {
	return &capturedBroker{messages: make(map[string][][]byte)}
}

func (b *capturedBroker) Publish(_ context.Context, topic, _ string, payload []byte, _ map[string]string) error {
	b.messages[topic] = append(b.messages[topic], payload)
	return nil
}

func (b *capturedBroker) drain(topic string) [][]byte {
	out := b.messages[topic]
	b.messages[topic] = nil
	return out
}

func pump(t *testing.T, f *fixture, broker *capturedBroker) {
	t.Helper()
	worker := &infraoutbox.Worker{
		Store:    f.outbox,
		Producer: broker,
		Topics: map[string]string{
			domainbooking.EventNameRequested:     "booking-requests",
			domainbooking.EventNameStatusUpdated: "booking-updates",
		},
		ID: "flow-test",
	}
	for {
		processed, err := worker.ProcessOnce(context.Background())
		require.NoError(t, err)
		if !processed {
			return
		}
	}
}

func deliver(t *testing.T, handler consume.Handler, payloads [][]byte) {
	t.Helper()
	for _, raw := range payloads {
		env, err := consume.DecodeEnvelope(raw)
		require.NoError(t, err)
		verdict, err := handler.Handle(context.Background(), env)
		require.NoError(t, err)
		require.Equal(t, consume.Ack, verdict)
	}
}

func TestBookingFlowConvergesAcrossServices(t *testing.T) {
	traveler := newFixture(t)
	owner := newFixture(t)
	broker := newCapturedBroker()

	ownerProjector := &consume.RequestedProjector{
		UoWFactory: owner.factory,
		Inbox:      memory.NewInbox(),
	}
	ownerStatus := &consume.StatusNotifier{
		UoWFactory: owner.factory,
		Inbox:      memory.NewInbox(),
		Clock:      func() time.Time { return day("2024-05-02") },
	}
	travelerStatus := &consume.StatusNotifier{
		UoWFactory: traveler.factory,
		Inbox:      memory.NewInbox(),
		Clock:      func() time.Time { return day("2024-05-02") },
	}

	// Traveler requests a stay; the event travels through the outbox to the
	// owner service, which materializes its projection.
	traveler.request(t, "bk-1")
	pump(t, traveler, broker)
	deliver(t, ownerProjector, broker.drain("booking-requests"))

	projected, err := owner.factory.Bookings.ByID(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, projected.Status)

	// Owner approves; the status update converges the traveler's copy.
	_, err = commands.Dispatch[bookingapp.ApproveBookingCommand, *bookingapp.TransitionResult](
		context.Background(), owner.commands, bookingapp.ApproveBookingCommand{OwnerID: "owner-1", BookingID: "bk-1"})
	require.NoError(t, err)
	pump(t, owner, broker)
	updates := broker.drain("booking-updates")
	deliver(t, travelerStatus, updates)
	// The owner's own group receives the echo as a no-op.
	deliver(t, ownerStatus, updates)

	local, err := traveler.factory.Bookings.ByID(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusAccepted, local.Status)

	// Traveler cancels the accepted stay; the owner copy follows.
	_, err = commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.TransitionResult](
		context.Background(), traveler.commands, bookingapp.CancelBookingCommand{CallerID: "traveler-1", BookingID: "bk-1", Reason: "plans changed"})
	require.NoError(t, err)
	pump(t, traveler, broker)
	deliver(t, ownerStatus, broker.drain("booking-updates"))

	remote, err := owner.factory.Bookings.ByID(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, remote.Status)
	assert.Equal(t, "plans changed", remote.CancellationReason)
}

func TestBookingFlowRedeliveryIsIdempotent(t *testing.T) {
	traveler := newFixture(t)
	owner := newFixture(t)
	broker := newCapturedBroker()

	ownerProjector := &consume.RequestedProjector{
		UoWFactory: owner.factory,
		Inbox:      memory.NewInbox(),
	}

	traveler.request(t, "bk-1")
	pump(t, traveler, broker)
	requests := broker.drain("booking-requests")

	// The broker may deliver the same message more than once.
	deliver(t, ownerProjector, requests)
	deliver(t, ownerProjector, requests)

	list, err := owner.factory.Bookings.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
