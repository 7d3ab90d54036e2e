package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/internal/booking/bookingtest"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*booking.Service, *bookingtest.Store, time.Time) {
	t.Helper()
	loc, err := booking.LoadLocation(booking.DefaultZone)
	require.NoError(t, err)
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, loc)
	store := bookingtest.NewStore()
	svc := booking.NewService(store, nil, booking.Config{
		Location: loc,
		Now:      func() time.Time { return now },
	})
	return svc, store, now
}

func request(correo string, at time.Time) booking.BookingRequest {
	return booking.BookingRequest{
		Nombre:    "Ana",
		Apellidos: "López",
		Correo:    correo,
		Telefono:  "5551234567",
		FechaHora: at,
		Motivo:    "Consulta general",
	}
}

func TestBookRejectsLessThanOneHourAhead(t *testing.T) {
	svc, store, now := newService(t)

	for _, at := range []time.Time{now.Add(59 * time.Minute), now, now.Add(-24 * time.Hour)} {
		_, err := svc.Book(context.Background(), request("a@x.com", at))
		var verr *booking.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, booking.MsgLeadTime, verr.Msg)
		assert.ErrorIs(t, err, booking.ErrInvalidInput)
	}
	assert.Empty(t, store.Customers())
	assert.Empty(t, store.Appointments())
	assert.Empty(t, store.Events())
}

func TestBookAcceptsExactlyOneHourAhead(t *testing.T) {
	svc, _, now := newService(t)

	appt, err := svc.Book(context.Background(), request("a@x.com", now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Estado)
}

func TestBookLeadTimeUsesReferenceZone(t *testing.T) {
	svc, _, now := newService(t)

	// 10:30 wall clock in the reference zone is 16:30 UTC, still too early.
	at, err := booking.ParseLocalDateTime("2026-10-16T10:30", svc.Location())
	require.NoError(t, err)
	assert.True(t, at.Equal(now.Add(30*time.Minute)))
	_, err = svc.Book(context.Background(), request("a@x.com", at))
	assert.ErrorIs(t, err, booking.ErrInvalidInput)

	at, err = booking.ParseLocalDateTime("2026-10-16T11:00:00", svc.Location())
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), request("a@x.com", at))
	assert.NoError(t, err)
}

func TestBookNewEmailCreatesCustomerAndAppointment(t *testing.T) {
	svc, store, now := newService(t)

	appt, err := svc.Book(context.Background(), request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	assert.NotZero(t, appt.ID)
	assert.Equal(t, model.StatusPending, appt.Estado)
	assert.Equal(t, "a@x.com", appt.Cliente.Correo)
	assert.NotZero(t, appt.Cliente.ID)
	assert.Len(t, store.Customers(), 1)
	assert.Len(t, store.Appointments(), 1)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, outbox.AggregateAppointment, events[0].AggregateType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "2026-10-16T12:00:00", payload["fechaHora"])
	assert.Equal(t, "PENDIENTE", payload["estado"])
}

func TestBookRepeatedEmailReusesCustomer(t *testing.T) {
	svc, store, now := newService(t)
	ctx := context.Background()

	first, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	again := request("a@x.com", now.Add(3*time.Hour))
	again.Nombre = "Otro"
	again.Apellidos = "Nombre"
	again.Telefono = "000"
	second, err := svc.Book(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.Cliente.ID, second.Cliente.ID)
	assert.NotEqual(t, first.ID, second.ID)
	customers := store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "Ana", customers[0].Nombre)
	assert.Equal(t, "López", customers[0].Apellidos)
	assert.Equal(t, "5551234567", customers[0].Telefono)
	assert.Len(t, store.Appointments(), 2)
}

func TestBookValidatesRequiredFields(t *testing.T) {
	svc, store, now := newService(t)
	ctx := context.Background()

	cases := map[string]func(*booking.BookingRequest){
		"correo":    func(r *booking.BookingRequest) { r.Correo = "  " },
		"motivo":    func(r *booking.BookingRequest) { r.Motivo = "" },
		"fechaHora": func(r *booking.BookingRequest) { r.FechaHora = time.Time{} },
		"nombre":    func(r *booking.BookingRequest) { r.Nombre = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := request("new@x.com", now.Add(2*time.Hour))
			mutate(&req)
			_, err := svc.Book(ctx, req)
			assert.ErrorIs(t, err, booking.ErrInvalidInput)
		})
	}
	assert.Empty(t, store.Customers())
	assert.Empty(t, store.Appointments())
}

func TestBookExistingCustomerNeedsOnlyEmail(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	_, err = svc.Book(ctx, booking.BookingRequest{
		Correo:    "a@x.com",
		FechaHora: now.Add(4 * time.Hour),
		Motivo:    "Seguimiento",
	})
	assert.NoError(t, err)
}

func TestBookRetriesOnceAfterConcurrentCustomerInsert(t *testing.T) {
	svc, store, now := newService(t)
	store.RaceCustomers = []model.Customer{{Nombre: "Primero", Apellidos: "En llegar", Correo: "a@x.com"}}

	appt, err := svc.Book(context.Background(), request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	customers := store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "Primero", customers[0].Nombre)
	assert.Equal(t, customers[0].ID, appt.Cliente.ID)
	assert.Equal(t, 1, store.CustomerInserts())
	assert.Len(t, store.Appointments(), 1)
	assert.Len(t, store.Events(), 1)
}

func TestBookSurfacesConflictAfterRetry(t *testing.T) {
	svc, store, now := newService(t)
	store.AlwaysConflict = true

	_, err := svc.Book(context.Background(), request("a@x.com", now.Add(2*time.Hour)))
	assert.ErrorIs(t, err, booking.ErrConflict)
	assert.Equal(t, 2, store.CustomerInserts())
	assert.Empty(t, store.Customers())
	assert.Empty(t, store.Appointments())
	assert.Equal(t, "conflict", booking.Outcome(err))
}

func TestBookRetriesWhenCustomerVanishes(t *testing.T) {
	svc, store, now := newService(t)
	ctx := context.Background()
	first, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	store.DropCustomers = 1
	appt, err := svc.Book(ctx, request("a@x.com", now.Add(3*time.Hour)))
	require.NoError(t, err)
	assert.NotEqual(t, first.Cliente.ID, appt.Cliente.ID)

	customers := store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, appt.Cliente.ID, customers[0].ID)
	// The deleted customer's earlier appointment went with it.
	assert.Len(t, store.Appointments(), 1)
}

func TestBookGivesUpWhenCustomerKeepsVanishing(t *testing.T) {
	svc, store, now := newService(t)
	store.DropCustomers = 2

	_, err := svc.Book(context.Background(), request("a@x.com", now.Add(2*time.Hour)))
	assert.ErrorIs(t, err, booking.ErrConflict)
	assert.Empty(t, store.Customers())
	assert.Empty(t, store.Appointments())
}

func TestBookFailureLeavesNoPartialState(t *testing.T) {
	svc, store, now := newService(t)
	boom := errors.New("outbox unavailable")
	store.FailEvents = boom

	_, err := svc.Book(context.Background(), request("a@x.com", now.Add(2*time.Hour)))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.Customers())
	assert.Empty(t, store.Appointments())
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	svc, store, now := newService(t)
	ctx := context.Background()
	appt, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	first, err := svc.UpdateStatus(ctx, appt.ID, model.StatusCompleted)
	require.NoError(t, err)
	second, err := svc.UpdateStatus(ctx, appt.ID, model.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, first.Estado)
	assert.Equal(t, first, second)
	stored := store.Appointments()
	require.Len(t, stored, 1)
	assert.Equal(t, model.StatusCompleted, stored[0].Estado)

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, outbox.EventAppointmentStatusChanged, events[1].EventType)
}

func TestUpdateStatusAllowsAnyTransition(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()
	appt, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	for _, st := range []model.Status{model.StatusCancelled, model.StatusPending, model.StatusCompleted, model.StatusPending} {
		got, err := svc.UpdateStatus(ctx, appt.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Estado)
	}
}

func TestUpdateStatusRejectsUnknownStatusBeforeLookup(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()
	appt, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	for _, id := range []int64{appt.ID, 9999} {
		_, err := svc.UpdateStatus(ctx, id, "XYZ")
		assert.ErrorIs(t, err, booking.ErrInvalidInput)
		assert.NotErrorIs(t, err, booking.ErrNotFound)
	}
	_, err = svc.UpdateStatus(ctx, appt.ID, "")
	assert.ErrorIs(t, err, booking.ErrInvalidInput)
	_, err = svc.UpdateStatus(ctx, appt.ID, "completada")
	assert.ErrorIs(t, err, booking.ErrInvalidInput)

	for _, padded := range []model.Status{" COMPLETADA ", "CANCELADA\n", "\tPENDIENTE"} {
		_, err = svc.UpdateStatus(ctx, appt.ID, padded)
		assert.ErrorIs(t, err, booking.ErrInvalidInput, "%q", padded)
	}
	got, err := svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Estado)
}

func TestUpdateStatusUnknownID(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.UpdateStatus(context.Background(), 42, model.StatusCancelled)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestDeleteTwiceReportsNotFound(t *testing.T) {
	svc, store, now := newService(t)
	ctx := context.Background()
	appt, err := svc.Book(ctx, request("a@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, appt.ID))
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, svc.Delete(ctx, appt.ID), booking.ErrNotFound)
	}
	_, err = svc.Get(ctx, appt.ID)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	assert.Empty(t, store.Appointments())
	assert.Len(t, store.Customers(), 1)
	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, outbox.EventAppointmentDeleted, events[1].EventType)
}

func TestListings(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	a1, err := svc.Book(ctx, request("a@x.com", now.Add(5*time.Hour)))
	require.NoError(t, err)
	b1, err := svc.Book(ctx, request("b@x.com", now.Add(2*time.Hour)))
	require.NoError(t, err)
	a2, err := svc.Book(ctx, request("a@x.com", now.Add(3*time.Hour)))
	require.NoError(t, err)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{a1.ID, b1.ID, a2.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "b@x.com", all[1].Cliente.Correo)

	byA, err := svc.ListByCustomer(ctx, a1.Cliente.ID)
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, a1.ID, byA[0].ID)
	assert.Equal(t, a2.ID, byA[1].ID)

	none, err := svc.ListByCustomer(ctx, 12345)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestParseAndFormatLocalDateTime(t *testing.T) {
	loc, err := booking.LoadLocation("")
	require.NoError(t, err)

	for _, in := range []string{"2026-12-01T09:30", "2026-12-01T09:30:00", "2026-12-01T09:30:00.000"} {
		got, err := booking.ParseLocalDateTime(in, loc)
		require.NoError(t, err, in)
		assert.Equal(t, "2026-12-01T09:30:00", booking.FormatLocalDateTime(got, loc))
		assert.Equal(t, 15, got.UTC().Hour())
	}

	for _, in := range []string{"", "mañana", "2026-12-01", "2026-12-01T09:30:00Z"} {
		_, err := booking.ParseLocalDateTime(in, loc)
		assert.ErrorIs(t, err, booking.ErrInvalidInput, in)
	}

	_, err = booking.LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}
