package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/eecmx/citas/libs/metrics"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
	"github.com/eecmx/citas/services/citas-service/internal/storage"
)

const defaultLeadTime = time.Hour

// BookingRequest is a booking as submitted by a client. Customer fields other
// than Correo are only used when the customer does not exist yet.
type BookingRequest struct {
	Nombre    string
	Apellidos string
	Correo    string
	Telefono  string
	Direccion string
	FechaHora time.Time
	Motivo    string
}

type Config struct {
	// Location is the reference zone for the lead-time rule and for local
	// date-times exchanged with clients.
	Location *time.Location
	LeadTime time.Duration
	Now      func() time.Time
}

type Service struct {
	tx       TxRunner
	logger   *slog.Logger
	loc      *time.Location
	leadTime time.Duration
	now      func() time.Time
}

func NewService(tx TxRunner, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = defaultLeadTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:       tx,
		logger:   logger,
		loc:      cfg.Location,
		leadTime: cfg.LeadTime,
		now:      cfg.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Book(ctx context.Context, req BookingRequest) (appt model.Appointment, err error) {
	defer s.observe("book", time.Now(), &err)

	req = normalize(req)
	if err := s.validate(req); err != nil {
		return model.Appointment{}, err
	}

	// A concurrent booking may insert the same new correo between our lookup
	// and insert, or the customer may be deleted before the appointment row
	// lands. The second attempt sees the committed state and adapts.
	for attempt := 1; ; attempt++ {
		appt, err = s.bookOnce(ctx, req)
		if !storage.IsConflict(err) && !storage.IsInvalidReference(err) {
			return appt, err
		}
		if attempt == 2 {
			return model.Appointment{}, fmt.Errorf("book appointment for %s: %w: %w", req.Correo, ErrConflict, err)
		}
		s.logger.Warn("booking raced a concurrent customer change; retrying", "correo", req.Correo, "err", err)
	}
}

func normalize(req BookingRequest) BookingRequest {
	req.Nombre = strings.TrimSpace(req.Nombre)
	req.Apellidos = strings.TrimSpace(req.Apellidos)
	req.Correo = strings.TrimSpace(req.Correo)
	req.Telefono = strings.TrimSpace(req.Telefono)
	req.Direccion = strings.TrimSpace(req.Direccion)
	req.Motivo = strings.TrimSpace(req.Motivo)
	return req
}

func (s *Service) validate(req BookingRequest) error {
	switch {
	case req.Correo == "":
		return invalid("El correo es obligatorio.")
	case req.Motivo == "":
		return invalid("El motivo es obligatorio.")
	case req.FechaHora.IsZero():
		return invalid("La fecha y hora de la cita es obligatoria.")
	}
	earliest := s.now().In(s.loc).Add(s.leadTime)
	if req.FechaHora.Before(earliest) {
		return invalid(MsgLeadTime)
	}
	return nil
}

func (s *Service) bookOnce(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	var appt model.Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		cliente, err := st.Customers.FindByEmail(ctx, req.Correo)
		switch {
		case storage.IsNotFound(err):
			if req.Nombre == "" || req.Apellidos == "" {
				return invalid("Nombre y apellidos son obligatorios para un cliente nuevo.")
			}
			cliente = model.Customer{
				Nombre:    req.Nombre,
				Apellidos: req.Apellidos,
				Correo:    req.Correo,
				Telefono:  req.Telefono,
				Direccion: req.Direccion,
			}
			if err := st.Customers.Create(ctx, &cliente); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		appt = model.Appointment{
			FechaHora: req.FechaHora.Truncate(time.Microsecond),
			Motivo:    req.Motivo,
			Estado:    model.StatusPending,
			Cliente:   cliente,
		}
		if err := st.Appointments.Create(ctx, &appt); err != nil {
			return err
		}
		return s.recordEvent(ctx, st, outbox.EventAppointmentBooked, appt, "")
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) ListAll(ctx context.Context) (appts []model.Appointment, err error) {
	defer s.observe("list_all", time.Now(), &err)

	err = s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		appts, err = st.Appointments.FindAll(ctx)
		return err
	})
	return appts, err
}

// ListByCustomer returns an empty list for an unknown customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) (appts []model.Appointment, err error) {
	defer s.observe("list_by_customer", time.Now(), &err)

	err = s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		appts, err = st.Appointments.FindByCustomerID(ctx, customerID)
		return err
	})
	if err == nil && appts == nil {
		appts = []model.Appointment{}
	}
	return appts, err
}

func (s *Service) Get(ctx context.Context, id int64) (appt model.Appointment, err error) {
	defer s.observe("get", time.Now(), &err)

	err = s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		appt, err = st.Appointments.FindByID(ctx, id)
		return notFound(id, err)
	})
	return appt, err
}

// UpdateStatus validates estado before looking the appointment up, so an
// unknown status is rejected whether or not id exists. Setting the current
// status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id int64, estado model.Status) (appt model.Appointment, err error) {
	defer s.observe("update_status", time.Now(), &err)

	if estado == "" {
		return model.Appointment{}, invalid("El estado es obligatorio.")
	}
	if !estado.Valid() {
		return model.Appointment{}, invalid(MsgInvalidStatus)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		appt, err = st.Appointments.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(id, err)
		}
		if appt.Estado == estado {
			return nil
		}

		previous := appt.Estado
		updatedAt, err := st.Appointments.UpdateStatus(ctx, id, estado)
		if err != nil {
			return notFound(id, err)
		}
		appt.Estado = estado
		appt.UpdatedAt = updatedAt
		return s.recordEvent(ctx, st, outbox.EventAppointmentStatusChanged, appt, previous)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	defer s.observe("delete", time.Now(), &err)

	return s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		appt, err := st.Appointments.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(id, err)
		}
		if err := st.Appointments.DeleteByID(ctx, id); err != nil {
			return notFound(id, err)
		}
		return s.recordEvent(ctx, st, outbox.EventAppointmentDeleted, appt, "")
	})
}

func notFound(id int64, err error) error {
	if storage.IsNotFound(err) {
		return fmt.Errorf("cita %d: %w", id, ErrNotFound)
	}
	return err
}

type appointmentEvent struct {
	ID             int64     `json:"id"`
	ClienteID      int64     `json:"clienteId"`
	Correo         string    `json:"correo"`
	FechaHora      string    `json:"fechaHora"`
	Motivo         string    `json:"motivo"`
	Estado         string    `json:"estado"`
	EstadoAnterior string    `json:"estadoAnterior,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (s *Service) recordEvent(ctx context.Context, st Stores, eventType string, a model.Appointment, previous model.Status) error {
	payload, err := json.Marshal(appointmentEvent{
		ID:             a.ID,
		ClienteID:      a.Cliente.ID,
		Correo:         a.Cliente.Correo,
		FechaHora:      FormatLocalDateTime(a.FechaHora, s.loc),
		Motivo:         a.Motivo,
		Estado:         string(a.Estado),
		EstadoAnterior: string(previous),
		OccurredAt:     s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return st.Events.Insert(ctx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   strconv.FormatInt(a.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	})
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	metrics.ObserveOperation(op, Outcome(*errp), time.Since(start))
}

// Outcome names the class of err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
