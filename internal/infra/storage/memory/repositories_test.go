package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newBooking(t *testing.T, id, checkIn, checkOut string) *domainbooking.Booking {
	t.Helper()
	dr, err := daterange.New(day(checkIn), day(checkOut))
	require.NoError(t, err)
	b, err := domainbooking.NewProjection(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(id),
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

func TestBookingRepositorySaveGuardsOverlap(t *testing.T) {
	repo := memory.NewBookingRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newBooking(t, "bk-1", "2024-06-01", "2024-06-04")))

	// A second blocking booking over the same dates is refused at save time.
	err := repo.Save(ctx, newBooking(t, "bk-2", "2024-06-03", "2024-06-06"))
	assert.ErrorIs(t, err, domainbooking.ErrDateConflict)

	// Back-to-back stays are fine.
	require.NoError(t, repo.Save(ctx, newBooking(t, "bk-3", "2024-06-04", "2024-06-07")))
}

func TestBookingRepositorySaveSkipsGuardForUpdates(t *testing.T) {
	repo := memory.NewBookingRepository()
	ctx := context.Background()

	b := newBooking(t, "bk-1", "2024-06-01", "2024-06-04")
	require.NoError(t, repo.Save(ctx, b))
	require.NoError(t, b.Cancel(domainbooking.ActorTraveler, "", day("2024-05-02")))
	require.NoError(t, repo.Save(ctx, b))

	// Cancelled bookings release the dates.
	require.NoError(t, repo.Save(ctx, newBooking(t, "bk-2", "2024-06-01", "2024-06-04")))
}

func TestBookingRepositorySaveBumpsVersion(t *testing.T) {
	repo := memory.NewBookingRepository()
	ctx := context.Background()

	b := newBooking(t, "bk-1", "2024-06-01", "2024-06-04")
	require.NoError(t, repo.Save(ctx, b))
	assert.Equal(t, int64(1), b.Version)
	require.NoError(t, repo.Save(ctx, b))
	assert.Equal(t, int64(2), b.Version)
}

func TestBookingRepositoryByIDReturnsCopies(t *testing.T) {
	repo := memory.NewBookingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newBooking(t, "bk-1", "2024-06-01", "2024-06-04")))

	loaded, err := repo.ByID(ctx, "bk-1")
	require.NoError(t, err)
	loaded.Status = domainbooking.StatusCancelled

	again, err := repo.ByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, again.Status)

	_, err = repo.ByID(ctx, "bk-missing")
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
}

func TestBookingRepositoryListAcceptedEndedBefore(t *testing.T) {
	repo := memory.NewBookingRepository()
	ctx := context.Background()

	past := newBooking(t, "bk-1", "2024-06-01", "2024-06-04")
	require.NoError(t, past.Transition(domainbooking.StatusAccepted, domainbooking.ActorOwner, "", day("2024-05-02")))
	require.NoError(t, repo.Save(ctx, past))

	future := newBooking(t, "bk-2", "2024-07-01", "2024-07-04")
	require.NoError(t, future.Transition(domainbooking.StatusAccepted, domainbooking.ActorOwner, "", day("2024-05-02")))
	require.NoError(t, repo.Save(ctx, future))

	due, err := repo.ListAcceptedEndedBefore(ctx, day("2024-06-10"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domainbooking.BookingID("bk-1"), due[0].ID)
}
