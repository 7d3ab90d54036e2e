package model

import "time"

// Status is the lifecycle state of an appointment. The values are the ones
// stored in the estado column and exchanged over the API.
type Status string

const (
	StatusPending   Status = "PENDIENTE"
	StatusCompleted Status = "COMPLETADA"
	StatusCancelled Status = "CANCELADA"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type Customer struct {
	ID        int64
	Nombre    string
	Apellidos string
	Correo    string
	Telefono  string
	Direccion string
	CreatedAt time.Time
}

// Appointment always carries its owning customer. The reverse direction is
// a query (appointments by customer id), never a field.
type Appointment struct {
	ID        int64
	FechaHora time.Time
	Motivo    string
	Estado    Status
	Cliente   Customer
	CreatedAt time.Time
	UpdatedAt time.Time
}
