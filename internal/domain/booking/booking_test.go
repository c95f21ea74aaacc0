package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain/booking"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestBooking(t *testing.T) *booking.Booking {
	t.Helper()
	dr, err := daterange.New(day("2024-06-01"), day("2024-06-04"))
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{
		ID:         "bk-1",
		PropertyID: "prop-1",
		TravelerID: "traveler-1",
		OwnerID:    "owner-1",
		Range:      dr,
		Guests:     2,
		TotalPrice: money.Must(30000, "USD"),
		CreatedAt:  day("2024-05-01"),
	})
	require.NoError(t, err)
	return b
}

func TestNewBookingStartsPendingAndRecordsRequested(t *testing.T) {
	b := newTestBooking(t)
	assert.Equal(t, booking.StatusPending, b.Status)

	events := b.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, booking.EventNameRequested, events[0].EventName())
}

func TestNewProjectionRecordsNoEvents(t *testing.T) {
	dr, err := daterange.New(day("2024-06-01"), day("2024-06-04"))
	require.NoError(t, err)
	b, err := booking.NewProjection(booking.CreateParams{
		ID:         "bk-1",
		PropertyID: "prop-1",
		TravelerID: "traveler-1",
		OwnerID:    "owner-1",
		Range:      dr,
		Guests:     2,
		TotalPrice: money.Must(30000, "USD"),
		CreatedAt:  day("2024-05-01"),
	})
	require.NoError(t, err)
	assert.Empty(t, b.PendingEvents())
}

func TestNewBookingValidation(t *testing.T) {
	dr, err := daterange.New(day("2024-06-01"), day("2024-06-04"))
	require.NoError(t, err)
	base := booking.CreateParams{
		ID:         "bk-1",
		PropertyID: "prop-1",
		TravelerID: "traveler-1",
		OwnerID:    "owner-1",
		Range:      dr,
		Guests:     2,
		CreatedAt:  day("2024-05-01"),
	}

	params := base
	params.Guests = 0
	_, err = booking.NewBooking(params)
	assert.ErrorIs(t, err, booking.ErrInvalidGuests)

	params = base
	params.TravelerID = ""
	_, err = booking.NewBooking(params)
	assert.ErrorIs(t, err, booking.ErrTravelerRequired)

	params = base
	params.OwnerID = ""
	_, err = booking.NewBooking(params)
	assert.ErrorIs(t, err, booking.ErrOwnerRequired)
}

func TestTransitionTable(t *testing.T) {
	now := day("2024-05-02")
	cases := []struct {
		name    string
		from    booking.Status
		to      booking.Status
		actor   booking.Actor
		allowed bool
	}{
		{"owner accepts pending", booking.StatusPending, booking.StatusAccepted, booking.ActorOwner, true},
		{"traveler cannot accept", booking.StatusPending, booking.StatusAccepted, booking.ActorTraveler, false},
		{"owner rejects pending", booking.StatusPending, booking.StatusRejected, booking.ActorOwner, true},
		{"traveler cancels pending", booking.StatusPending, booking.StatusCancelled, booking.ActorTraveler, true},
		{"owner cannot cancel pending", booking.StatusPending, booking.StatusCancelled, booking.ActorOwner, false},
		{"traveler cancels accepted", booking.StatusAccepted, booking.StatusCancelled, booking.ActorTraveler, true},
		{"owner cancels accepted", booking.StatusAccepted, booking.StatusCancelled, booking.ActorOwner, true},
		{"system cannot cancel", booking.StatusAccepted, booking.StatusCancelled, booking.ActorSystem, false},
		{"system completes accepted", booking.StatusAccepted, booking.StatusCompleted, booking.ActorSystem, true},
		{"owner cannot complete", booking.StatusAccepted, booking.StatusCompleted, booking.ActorOwner, false},
		{"rejected is terminal", booking.StatusRejected, booking.StatusCancelled, booking.ActorTraveler, false},
		{"cancelled is terminal", booking.StatusCancelled, booking.StatusAccepted, booking.ActorOwner, false},
		{"completed is terminal", booking.StatusCompleted, booking.StatusCancelled, booking.ActorOwner, false},
		{"pending cannot complete", booking.StatusPending, booking.StatusCompleted, booking.ActorSystem, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBooking(t)
			b.Status = tc.from
			b.ClearEvents()

			err := b.Transition(tc.to, tc.actor, "", now)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, b.Status)
				assert.Len(t, b.PendingEvents(), 1)
			} else {
				assert.ErrorIs(t, err, booking.ErrInvalidTransition)
				assert.Equal(t, tc.from, b.Status)
				assert.Empty(t, b.PendingEvents())
			}
		})
	}
}

func TestCancelStampsMetadata(t *testing.T) {
	b := newTestBooking(t)
	now := day("2024-05-03")

	require.NoError(t, b.Cancel(booking.ActorTraveler, "change of plans", now))

	assert.Equal(t, booking.StatusCancelled, b.Status)
	assert.Equal(t, booking.ActorTraveler, b.CancelledBy)
	require.NotNil(t, b.CancelledAt)
	assert.True(t, b.CancelledAt.Equal(now.UTC()))
	assert.Equal(t, "change of plans", b.CancellationReason)
}

func TestCompleteRequiresCheckOutPassed(t *testing.T) {
	b := newTestBooking(t)
	require.NoError(t, b.Accept(day("2024-05-02")))

	assert.ErrorIs(t, b.Complete(day("2024-06-03")), booking.ErrInvalidTransition)
	assert.Equal(t, booking.StatusAccepted, b.Status)

	require.NoError(t, b.Complete(day("2024-06-04")))
	assert.Equal(t, booking.StatusCompleted, b.Status)
}

func TestApplyRemoteStatus(t *testing.T) {
	t.Run("applies a valid remote transition", func(t *testing.T) {
		b := newTestBooking(t)
		changed, err := b.ApplyRemoteStatus(booking.StatusAccepted, "", day("2024-05-02"))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusAccepted, b.Status)
	})

	t.Run("redelivery of the current status is a no-op", func(t *testing.T) {
		b := newTestBooking(t)
		changed, err := b.ApplyRemoteStatus(booking.StatusPending, "", day("2024-05-02"))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("stamps cancellation metadata", func(t *testing.T) {
		b := newTestBooking(t)
		now := day("2024-05-02")
		changed, err := b.ApplyRemoteStatus(booking.StatusCancelled, "traveler bailed", now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.ActorRemote, b.CancelledBy)
		assert.Equal(t, "traveler bailed", b.CancellationReason)
	})

	t.Run("impossible edge fails", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.Reject("full", day("2024-05-02")))
		_, err := b.ApplyRemoteStatus(booking.StatusAccepted, "", day("2024-05-03"))
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	})
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, booking.StatusPending.Blocking())
	assert.True(t, booking.StatusAccepted.Blocking())
	assert.False(t, booking.StatusRejected.Blocking())
	assert.False(t, booking.StatusCancelled.Blocking())
	assert.False(t, booking.StatusCompleted.Blocking())

	assert.True(t, booking.StatusRejected.Terminal())
	assert.False(t, booking.StatusPending.Terminal())

	_, err := booking.ParseStatus("APPROVED")
	assert.ErrorIs(t, err, booking.ErrUnknownStatus)
	status, err := booking.ParseStatus("ACCEPTED")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAccepted, status)
}
