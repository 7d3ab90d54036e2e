package booking

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("appointment not found")
	ErrConflict     = errors.New("concurrent booking conflict")
)

// ValidationError carries a message meant for the API client.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(msg string) error {
	return &ValidationError{Msg: msg}
}

const (
	MsgLeadTime      = "La cita debe ser programada con al menos una hora de anticipación."
	MsgInvalidStatus = "Estado inválido. Valores permitidos: PENDIENTE, COMPLETADA, CANCELADA."
)
