package booking_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
	"github.com/eecmx/citas/services/citas-service/migrations"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPgxRunnerEndToEnd(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}
	_, err := db.Migrate(migrations.FS, migrations.Dir, dsn)
	require.NoError(t, err)

	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE citas, clientes, outbox_events RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	loc, err := booking.LoadLocation("")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(booking.NewPgxRunner(pool), logger, booking.Config{Location: loc})

	at := time.Now().Add(3 * time.Hour).Truncate(time.Second)
	appt, err := svc.Book(ctx, booking.BookingRequest{
		Nombre: "Ana", Apellidos: "López", Correo: "a@x.com", FechaHora: at, Motivo: "Consulta",
	})
	require.NoError(t, err)
	assert.True(t, appt.FechaHora.Equal(at))

	_, err = svc.Book(ctx, booking.BookingRequest{Correo: "a@x.com", FechaHora: at.Add(time.Hour), Motivo: "Otra"})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, appt.ID, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, updated.Estado)

	byCustomer, err := svc.ListByCustomer(ctx, appt.Cliente.ID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	require.NoError(t, svc.Delete(ctx, appt.ID))
	assert.ErrorIs(t, svc.Delete(ctx, appt.ID), booking.ErrNotFound)

	writer := &recordingWriter{}
	pub := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{BatchSize: 10})
	n, err := pub.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, writer.msgs, 4)
	assert.Equal(t, outbox.EventAppointmentBooked, writer.msgs[0].Topic)
	assert.Equal(t, outbox.EventAppointmentDeleted, writer.msgs[3].Topic)

	n, err = pub.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
