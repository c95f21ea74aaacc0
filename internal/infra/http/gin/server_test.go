package ginserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/admission"
	"staybook/internal/app/commands"
	bookingapp "staybook/internal/app/handlers/booking"
	"staybook/internal/app/middleware"
	"staybook/internal/app/queries"
	domainproperty "staybook/internal/domain/property"
	"staybook/internal/domain/shared/money"
	"staybook/internal/infra/config"
	ginserver "staybook/internal/infra/http/gin"
	"staybook/internal/infra/obs"
	"staybook/internal/infra/storage/memory"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	factory := memory.NewUoWFactory()
	outboxStore := memory.NewOutboxStore()

	require.NoError(t, factory.Properties.Save(context.Background(), &domainproperty.Property{
		ID:          "prop-1",
		OwnerID:     "owner-1",
		Title:       "Seaside flat",
		MaxGuests:   4,
		NightlyRate: money.Must(10000, "USD"),
		Available:   true,
	}))

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, bookingapp.RequestBookingCommand{}.Key(), &bookingapp.RequestBookingHandler{
		UoWFactory: factory,
		Admission:  admission.Controller{Clock: func() time.Time { return day("2024-05-01") }},
		Outbox:     outboxStore,
	})
	commands.RegisterHandler(commandBus, bookingapp.ApproveBookingCommand{}.Key(),
		bookingapp.NewApproveBookingHandler(outboxStore, nil))
	commands.RegisterHandler(commandBus, bookingapp.RejectBookingCommand{}.Key(),
		bookingapp.NewRejectBookingHandler(outboxStore, nil))
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(),
		bookingapp.NewCancelBookingHandler(outboxStore, nil))

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.ListBookingsQuery{}.Key(), &bookingapp.ListBookingsHandler{
		UoWFactory: factory,
	})

	wrappedCommands := middleware.ChainCommands(
		commandBus,
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
		middleware.Transaction(factory, nil),
		middleware.OutboxFlush(outboxStore),
	)
	wrappedQueries := middleware.ChainQueries(queryBus)

	server := ginserver.NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Traveler: ginserver.TravelerBookingHandler{Commands: wrappedCommands, Queries: wrappedQueries},
		Owner:    ginserver.OwnerBookingHandler{Commands: wrappedCommands, Queries: wrappedQueries},
	})
	return server.Handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]any {
	return map[string]any{
		"property_id": "prop-1",
		"check_in":    "2024-06-01T00:00:00Z",
		"check_out":   "2024-06-04T00:00:00Z",
		"guests":      2,
	}
}

func TestCreateBookingEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", createBody())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var res struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.BookingID)
	assert.Equal(t, "PENDING", res.Status)
}

func TestCreateBookingRequiresIdentity(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "", createBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingConflictIs409(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", createBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-2", createBody())
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCreateBookingRejectsMissingFields(t *testing.T) {
	handler := newTestServer(t)
	for _, field := range []string{"property_id", "check_in", "check_out", "guests"} {
		body := createBody()
		delete(body, field)
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "missing %s", field)
	}
}

func TestCreateBookingValidationIs400(t *testing.T) {
	handler := newTestServer(t)
	body := createBody()
	body["guests"] = 9
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestOwnerApproveFlow(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", createBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		BookingID string `json:"booking_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/owner/bookings/"+created.BookingID+"/approve", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/owner/bookings?status=ACCEPTED", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Items, 1)
	assert.Equal(t, created.BookingID, listing.Items[0].ID)
}

func TestOwnerApproveForeignBookingIs404(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", createBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		BookingID string `json:"booking_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/owner/bookings/"+created.BookingID+"/approve", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTravelerCancelEndpoint(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings", "traveler-1", createBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		BookingID string `json:"booking_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/bookings/"+created.BookingID+"/cancel", "traveler-1",
		map[string]any{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/bookings/missing/cancel", "traveler-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
