package booking

import (
	"context"
	"time"

	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
	"github.com/eecmx/citas/services/citas-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type CustomerStore interface {
	Create(ctx context.Context, c *model.Customer) error
	FindByEmail(ctx context.Context, email string) (model.Customer, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, a *model.Appointment) error
	FindByID(ctx context.Context, id int64) (model.Appointment, error)
	FindByIDForUpdate(ctx context.Context, id int64) (model.Appointment, error)
	FindAll(ctx context.Context) ([]model.Appointment, error)
	FindByCustomerID(ctx context.Context, customerID int64) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status) (time.Time, error)
	DeleteByID(ctx context.Context, id int64) error
}

type EventStore interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

// Stores is the set of stores bound to one transaction.
type Stores struct {
	Customers    CustomerStore
	Appointments AppointmentStore
	Events       EventStore
}

// TxRunner runs fn in a single transaction: committed when fn returns nil,
// rolled back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

type PgxRunner struct {
	pool *db.Pool
}

func NewPgxRunner(pool *db.Pool) *PgxRunner {
	return &PgxRunner{pool: pool}
}

func (r *PgxRunner) InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, Stores{
			Customers:    storage.NewCustomerRepository(tx),
			Appointments: storage.NewAppointmentRepository(tx),
			Events:       outbox.NewRepository(tx),
		})
	})
}
