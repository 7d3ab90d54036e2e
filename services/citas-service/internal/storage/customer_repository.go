package storage

import (
	"context"
	"strings"

	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/services/citas-service/internal/model"
)

type CustomerRepository struct {
	db db.DBTX
}

// NewCustomerRepository binds the repository to a pool or a transaction.
func NewCustomerRepository(q db.DBTX) *CustomerRepository {
	return &CustomerRepository{db: q}
}

const customerColumns = `id, nombre, apellidos, correo, COALESCE(telefono, ''), COALESCE(direccion, ''), created_at`

// Create inserts c and fills its id. A duplicate correo yields ErrConflict.
func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO clientes (nombre, apellidos, correo, telefono, direccion)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`, c.Nombre, c.Apellidos, c.Correo, c.Telefono, c.Direccion).Scan(&c.ID, &c.CreatedAt)
	return classify("insert customer", err)
}

func (r *CustomerRepository) FindByID(ctx context.Context, id int64) (model.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM clientes
		WHERE id = $1
	`, id))
	return c, classify("get customer", err)
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (model.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM clientes
		WHERE correo = $1
	`, strings.TrimSpace(email)))
	return c, classify("get customer by email", err)
}

// DeleteByID removes the customer and, through the foreign key, every
// appointment it owns.
func (r *CustomerRepository) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clientes WHERE id = $1`, id)
	if err != nil {
		return classify("delete customer", err)
	}
	if tag.RowsAffected() == 0 {
		return classify("delete customer", ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Nombre, &c.Apellidos, &c.Correo, &c.Telefono, &c.Direccion, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	return c, nil
}
