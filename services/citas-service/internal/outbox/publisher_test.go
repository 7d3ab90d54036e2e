package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/eecmx/citas/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestBuildMessages(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	created := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	records := []Record{
		{
			ID:          1,
			EventID:     "9b2f8c7e-0d4a-4f59-9a3e-2c5d7e8f9a10",
			AggregateID: "12",
			EventType:   EventAppointmentBooked,
			Payload:     []byte(`{"id":12}`),
			Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			CreatedAt:   created,
		},
		{ID: 2, EventID: "e1", AggregateID: "12", EventType: EventAppointmentDeleted, Payload: []byte(`{}`)},
	}

	msgs := BuildMessages(context.Background(), records)
	require.Len(t, msgs, 2)

	assert.Equal(t, EventAppointmentBooked, msgs[0].Topic)
	assert.Equal(t, []byte("12"), msgs[0].Key)
	assert.Equal(t, created, msgs[0].Time)
	meta := kafkax.ExtractEventMeta(msgs[0])
	assert.Equal(t, "9b2f8c7e-0d4a-4f59-9a3e-2c5d7e8f9a10", meta.EventID)
	assert.Equal(t, records[0].Traceparent, kafkax.HeaderValue(msgs[0].Headers, "traceparent"))

	assert.Empty(t, kafkax.HeaderValue(msgs[1].Headers, "traceparent"))
	assert.Equal(t, EventAppointmentDeleted, kafkax.ExtractEventMeta(msgs[1]).EventType)
}
