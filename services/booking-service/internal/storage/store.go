// Package storage is the ledger: customers, catalog, appointments, payments and
// the webhook audit log, accessed through scoped transactions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrSlotTaken is returned when a write would give two live appointments the same slot.
	ErrSlotTaken = errors.New("storage: slot taken")
)

// Store hands out transactions and serves read-only queries.
type Store interface {
	// WithTx commits when fn returns nil and rolls back otherwise, including on
	// panic or context cancellation.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListServices(ctx context.Context) ([]model.Service, error)
	ListPlans(ctx context.Context) ([]model.Plan, error)
	ListAppointments(ctx context.Context, limit int) ([]model.AppointmentView, error)
	CountAppointmentsByStatus(ctx context.Context) ([]model.StatusCount, error)
	// LiveTimes returns HH:MM start times held by live appointments of one
	// provider bucket ("" is unassigned) on date.
	LiveTimes(ctx context.Context, providerID, date string) ([]string, error)
	Ping(ctx context.Context) error
}

// Tx is one unit of work. Methods ending in ForUpdate lock the row until commit.
type Tx interface {
	// UpsertCustomer inserts c or, when the phone exists, overwrites the name and
	// returns the stored row.
	UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	Service(ctx context.Context, id string) (model.Service, error)
	Provider(ctx context.Context, id string) (model.Provider, error)
	SlotTaken(ctx context.Context, slot model.Slot) (bool, error)
	InsertAppointment(ctx context.Context, a model.Appointment) error
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus, now time.Time) error

	InsertPayment(ctx context.Context, p model.Payment) error
	PaymentForUpdate(ctx context.Context, ref model.PaymentRef) (model.Payment, error)
	UpdatePayment(ctx context.Context, p model.Payment) error

	AppendWebhookEvent(ctx context.Context, evt model.WebhookEvent) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}
