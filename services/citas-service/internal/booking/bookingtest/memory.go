// Package bookingtest provides an in-memory booking.TxRunner for tests.
package bookingtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/internal/model"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
	"github.com/eecmx/citas/services/citas-service/internal/storage"
)

// Store keeps customers, appointments and outbox events in memory.
// Transactions are serialised and a failed transaction restores the state
// it started from.
type Store struct {
	mu sync.Mutex

	customers    map[int64]model.Customer
	appointments map[int64]model.Appointment
	events       []outbox.Event
	nextCustomer int64
	nextAppt     int64

	// RaceCustomers is consumed one entry per customer insert: the entry is
	// committed as if by a concurrent transaction and the insert fails with
	// a unique violation.
	RaceCustomers []model.Customer
	// AlwaysConflict makes every customer insert fail with a unique violation.
	AlwaysConflict bool
	// DropCustomers is consumed one per appointment insert: the appointment's
	// customer is deleted as if by a concurrent transaction, so the insert
	// fails with a foreign key violation.
	DropCustomers int
	// FailEvents makes every outbox insert fail.
	FailEvents error

	committedByOthers []model.Customer
	deletedByOthers   []int64
	customerInserts   int
}

func NewStore() *Store {
	return &Store{
		customers:    map[int64]model.Customer{},
		appointments: map[int64]model.Appointment{},
	}
}

var _ booking.TxRunner = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, st booking.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	err := fn(ctx, booking.Stores{
		Customers:    customerStore{s},
		Appointments: appointmentStore{s},
		Events:       eventStore{s},
	})
	if err != nil {
		s.restore(snap)
	}
	for _, c := range s.committedByOthers {
		s.insertCustomer(c)
	}
	s.committedByOthers = nil
	for _, id := range s.deletedByOthers {
		s.deleteCustomer(id)
	}
	s.deletedByOthers = nil
	return err
}

type snapshot struct {
	customers    map[int64]model.Customer
	appointments map[int64]model.Appointment
	events       int
	nextCustomer int64
	nextAppt     int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		customers:    make(map[int64]model.Customer, len(s.customers)),
		appointments: make(map[int64]model.Appointment, len(s.appointments)),
		events:       len(s.events),
		nextCustomer: s.nextCustomer,
		nextAppt:     s.nextAppt,
	}
	for k, v := range s.customers {
		snap.customers[k] = v
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.customers = snap.customers
	s.appointments = snap.appointments
	s.events = s.events[:snap.events]
	s.nextCustomer = snap.nextCustomer
	s.nextAppt = snap.nextAppt
}

func (s *Store) insertCustomer(c model.Customer) model.Customer {
	s.nextCustomer++
	c.ID = s.nextCustomer
	s.customers[c.ID] = c
	return c
}

func (s *Store) Customers() []model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAppointments(func(model.Appointment) bool { return true })
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

// CustomerInserts counts insert attempts, including failed ones.
func (s *Store) CustomerInserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerInserts
}

func (s *Store) sortedAppointments(keep func(model.Appointment) bool) []model.Appointment {
	out := []model.Appointment{}
	for _, a := range s.appointments {
		if keep(a) {
			a.Cliente = s.customers[a.Cliente.ID]
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// deleteCustomer cascades to the customer's appointments like the schema does.
func (s *Store) deleteCustomer(id int64) {
	delete(s.customers, id)
	for aid, a := range s.appointments {
		if a.Cliente.ID == id {
			delete(s.appointments, aid)
		}
	}
}

func uniqueViolation(op string) error {
	return fmt.Errorf("%s: %w", op, storage.ErrConflict)
}

func missing(op string) error {
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

type customerStore struct{ s *Store }

func (cs customerStore) Create(_ context.Context, c *model.Customer) error {
	s := cs.s
	s.customerInserts++
	if s.AlwaysConflict {
		return uniqueViolation("insert customer")
	}
	if len(s.RaceCustomers) > 0 {
		s.committedByOthers = append(s.committedByOthers, s.RaceCustomers[0])
		s.RaceCustomers = s.RaceCustomers[1:]
		return uniqueViolation("insert customer")
	}
	for _, existing := range s.customers {
		if existing.Correo == c.Correo {
			return uniqueViolation("insert customer")
		}
	}
	c.CreatedAt = time.Now()
	*c = s.insertCustomer(*c)
	return nil
}

func (cs customerStore) FindByEmail(_ context.Context, email string) (model.Customer, error) {
	email = strings.TrimSpace(email)
	for _, c := range cs.s.customers {
		if c.Correo == email {
			return c, nil
		}
	}
	return model.Customer{}, missing("get customer by email")
}

type appointmentStore struct{ s *Store }

func (as appointmentStore) Create(_ context.Context, a *model.Appointment) error {
	s := as.s
	if s.DropCustomers > 0 {
		s.DropCustomers--
		s.deletedByOthers = append(s.deletedByOthers, a.Cliente.ID)
		s.deleteCustomer(a.Cliente.ID)
	}
	if _, ok := s.customers[a.Cliente.ID]; !ok {
		return fmt.Errorf("insert appointment: customer %d: %w", a.Cliente.ID, storage.ErrInvalidReference)
	}
	s.nextAppt++
	now := time.Now()
	a.ID = s.nextAppt
	a.CreatedAt = now
	a.UpdatedAt = now
	s.appointments[a.ID] = *a
	return nil
}

func (as appointmentStore) FindByID(_ context.Context, id int64) (model.Appointment, error) {
	a, ok := as.s.appointments[id]
	if !ok {
		return model.Appointment{}, missing("get appointment")
	}
	a.Cliente = as.s.customers[a.Cliente.ID]
	return a, nil
}

func (as appointmentStore) FindByIDForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	return as.FindByID(ctx, id)
}

func (as appointmentStore) FindAll(context.Context) ([]model.Appointment, error) {
	return as.s.sortedAppointments(func(model.Appointment) bool { return true }), nil
}

func (as appointmentStore) FindByCustomerID(_ context.Context, customerID int64) ([]model.Appointment, error) {
	return as.s.sortedAppointments(func(a model.Appointment) bool { return a.Cliente.ID == customerID }), nil
}

func (as appointmentStore) UpdateStatus(_ context.Context, id int64, status model.Status) (time.Time, error) {
	a, ok := as.s.appointments[id]
	if !ok {
		return time.Time{}, missing("update appointment status")
	}
	a.Estado = status
	a.UpdatedAt = time.Now()
	as.s.appointments[id] = a
	return a.UpdatedAt, nil
}

func (as appointmentStore) DeleteByID(_ context.Context, id int64) error {
	if _, ok := as.s.appointments[id]; !ok {
		return missing("delete appointment")
	}
	delete(as.s.appointments, id)
	return nil
}

type eventStore struct{ s *Store }

func (es eventStore) Insert(_ context.Context, evt outbox.Event) error {
	if es.s.FailEvents != nil {
		return es.s.FailEvents
	}
	es.s.events = append(es.s.events, evt)
	return nil
}
