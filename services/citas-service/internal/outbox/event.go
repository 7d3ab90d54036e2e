package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "cita"

	EventAppointmentBooked        = "citas.appointment.booked.v1"
	EventAppointmentStatusChanged = "citas.appointment.status_changed.v1"
	EventAppointmentDeleted       = "citas.appointment.deleted.v1"
)
