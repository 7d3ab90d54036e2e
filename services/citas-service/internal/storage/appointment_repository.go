package storage

import (
	"context"
	"time"

	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	db db.DBTX
}

// NewAppointmentRepository binds the repository to a pool or a transaction.
func NewAppointmentRepository(q db.DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: q}
}

// Every read joins the owning customer so callers never see a bare
// cliente_id.
const appointmentSelect = `
	SELECT c.id, c.fecha_hora, c.motivo, c.estado, c.created_at, c.updated_at,
		cl.id, cl.nombre, cl.apellidos, cl.correo,
		COALESCE(cl.telefono, ''), COALESCE(cl.direccion, ''), cl.created_at
	FROM citas c
	JOIN clientes cl ON cl.id = c.cliente_id
`

// Create inserts a and fills its id and timestamps. a.Cliente.ID must
// reference an existing customer.
func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO citas (fecha_hora, motivo, estado, cliente_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, a.FechaHora, a.Motivo, string(a.Estado), a.Cliente.ID).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return classify("insert appointment", err)
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, appointmentSelect+`WHERE c.id = $1`, id))
	return a, classify("get appointment", err)
}

// FindByIDForUpdate locks the appointment row until the surrounding
// transaction ends.
func (r *AppointmentRepository) FindByIDForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, appointmentSelect+`WHERE c.id = $1 FOR UPDATE OF c`, id))
	return a, classify("lock appointment", err)
}

func (r *AppointmentRepository) FindAll(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, appointmentSelect+`ORDER BY c.id ASC`)
	if err != nil {
		return nil, classify("list appointments", err)
	}
	appts, err := collectAppointments(rows)
	return appts, classify("list appointments", err)
}

func (r *AppointmentRepository) FindByCustomerID(ctx context.Context, customerID int64) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, appointmentSelect+`WHERE c.cliente_id = $1 ORDER BY c.id ASC`, customerID)
	if err != nil {
		return nil, classify("list appointments by customer", err)
	}
	appts, err := collectAppointments(rows)
	return appts, classify("list appointments by customer", err)
}

// UpdateStatus sets estado and returns the new updated_at.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, `
		UPDATE citas
		SET estado = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, string(status)).Scan(&updatedAt)
	return updatedAt, classify("update appointment status", err)
}

func (r *AppointmentRepository) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM citas WHERE id = $1`, id)
	if err != nil {
		return classify("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return classify("delete appointment", ErrNotFound)
	}
	return nil
}

func (r *AppointmentRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM citas WHERE id = $1)`, id).Scan(&exists)
	return exists, classify("check appointment", err)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	appts := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appts, nil
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var a model.Appointment
	var estado string
	err := row.Scan(
		&a.ID,
		&a.FechaHora,
		&a.Motivo,
		&estado,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Cliente.ID,
		&a.Cliente.Nombre,
		&a.Cliente.Apellidos,
		&a.Cliente.Correo,
		&a.Cliente.Telefono,
		&a.Cliente.Direccion,
		&a.Cliente.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Estado = model.Status(estado)
	return a, nil
}
