// Package booking places appointments and applies back-office status overrides.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/projectbarber/barber/libs/otel"
	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
	"github.com/projectbarber/barber/services/booking-service/internal/availability"
	"github.com/projectbarber/barber/services/booking-service/internal/clock"
	"github.com/projectbarber/barber/services/booking-service/internal/ids"
	"github.com/projectbarber/barber/services/booking-service/internal/metrics"
	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
	"github.com/projectbarber/barber/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

const adminListLimit = 200

var tracer = otelx.Tracer("booking-service/booking")

type Config struct {
	// Hours bounds the times offered by Availability.
	Hours availability.Hours
	// Location is the shop's wall-clock zone. Defaults to UTC.
	Location *time.Location
}

type Engine struct {
	store  storage.Store
	clock  clock.Clock
	ids    ids.Generator
	logger *slog.Logger
	cfg    Config
}

func NewEngine(store storage.Store, clk clock.Clock, idGen ids.Generator, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, clock: clk, ids: idGen, logger: logger, cfg: cfg}
}

type CreateResult struct {
	Appointment model.Appointment `json:"appointment"`
	Customer    model.Customer    `json:"customer"`
}

var errSlotTaken = apperr.Conflict(apperr.CodeSlotTaken, "This time slot is already booked")

// CreateAppointment upserts the customer and books the slot in one transaction.
// The store's live-slot constraint has the final word when two requests race.
func (e *Engine) CreateAppointment(ctx context.Context, req CreateRequest) (res CreateResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.CreateAppointment")
	defer func() { otelx.EndSpan(span, err) }()

	req, err = req.normalize()
	if err != nil {
		return CreateResult{}, err
	}
	span.SetAttributes(
		attribute.String("appointment.date", req.Date),
		attribute.String("appointment.time", req.Time),
		attribute.String("service.id", req.ServiceID),
	)

	now := e.clock.Now()
	err = e.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		customer, err := tx.UpsertCustomer(ctx, model.Customer{
			ID:        e.ids.NewID(),
			Name:      req.Name,
			Phone:     req.Phone,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		svc, err := tx.Service(ctx, req.ServiceID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !svc.Active) {
			return apperr.NotFound("service", "Service not found")
		}
		if err != nil {
			return err
		}

		if req.ProviderID != "" {
			p, err := tx.Provider(ctx, req.ProviderID)
			if errors.Is(err, storage.ErrNotFound) || (err == nil && !p.Active) {
				return apperr.NotFound("provider", "Barber not found")
			}
			if err != nil {
				return err
			}
		}

		appt := model.Appointment{
			ID:            e.ids.NewID(),
			CustomerID:    customer.ID,
			ServiceID:     svc.ID,
			ProviderID:    req.ProviderID,
			Date:          req.Date,
			Time:          req.Time,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
			Status:        model.AppointmentPendingPayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		taken, err := tx.SlotTaken(ctx, appt.Slot())
		if err != nil {
			return err
		}
		if taken {
			return errSlotTaken
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, outbox.EventAppointmentCreated, map[string]any{
			"appointment_id":   appt.ID,
			"customer_id":      customer.ID,
			"service_id":       svc.ID,
			"barber_id":        appt.ProviderID,
			"appointment_date": appt.Date,
			"appointment_time": appt.Time,
			"status":           appt.Status,
		})
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, evt); err != nil {
			return err
		}

		res = CreateResult{Appointment: appt, Customer: customer}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) || apperr.CodeOf(err) == apperr.CodeSlotTaken {
			metrics.SlotConflicts.Inc()
			return CreateResult{}, errSlotTaken
		}
		return CreateResult{}, apperr.Classified("create appointment", err)
	}

	metrics.AppointmentsCreated.Inc()
	e.logger.InfoContext(ctx, "appointment created",
		"appointment_id", res.Appointment.ID,
		"slot", res.Appointment.Slot().Key(),
	)
	return res, nil
}

// UpdateStatus is the back-office override. Re-activating an appointment is
// still subject to the live-slot rule.
func (e *Engine) UpdateStatus(ctx context.Context, appointmentID, rawStatus string) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.UpdateStatus")
	defer func() { otelx.EndSpan(span, err) }()

	status, ok := model.ParseAppointmentStatus(rawStatus)
	if !ok {
		return model.Appointment{}, apperr.Validation("Invalid status")
	}

	now := e.clock.Now()
	err = e.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.AppointmentForUpdate(ctx, appointmentID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("appointment", "Appointment not found")
		}
		if err != nil {
			return err
		}
		if cur.Status == status {
			appt = cur
			return nil
		}
		if err := tx.UpdateAppointmentStatus(ctx, cur.ID, status, now); err != nil {
			return err
		}

		evt, err := outbox.NewEvent(outbox.AggregateAppointment, cur.ID, outbox.EventAppointmentStatusChanged, map[string]any{
			"appointment_id": cur.ID,
			"from":           cur.Status,
			"to":             status,
			"changed_at":     now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, evt); err != nil {
			return err
		}

		cur.Status = status
		cur.UpdatedAt = now
		appt = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			metrics.SlotConflicts.Inc()
			return model.Appointment{}, errSlotTaken
		}
		return model.Appointment{}, apperr.Classified("update appointment status", err)
	}
	metrics.StatusOverrides.Inc()
	return appt, nil
}

func (e *Engine) Services(ctx context.Context) ([]model.Service, error) {
	out, err := e.store.ListServices(ctx)
	if err != nil {
		return nil, apperr.Internal("list services", err)
	}
	return nonNil(out), nil
}

func (e *Engine) Plans(ctx context.Context) ([]model.Plan, error) {
	out, err := e.store.ListPlans(ctx)
	if err != nil {
		return nil, apperr.Internal("list plans", err)
	}
	return nonNil(out), nil
}

// Appointments returns the most recent bookings for the back office.
func (e *Engine) Appointments(ctx context.Context) ([]model.AppointmentView, error) {
	out, err := e.store.ListAppointments(ctx, adminListLimit)
	if err != nil {
		return nil, apperr.Internal("list appointments", err)
	}
	return nonNil(out), nil
}

func (e *Engine) Dashboard(ctx context.Context) ([]model.StatusCount, error) {
	out, err := e.store.CountAppointmentsByStatus(ctx)
	if err != nil {
		return nil, apperr.Internal("count appointments", err)
	}
	return nonNil(out), nil
}

// Availability lists free start times for one provider bucket on date. It is
// advisory: CreateAppointment still decides.
func (e *Engine) Availability(ctx context.Context, date, providerID string) ([]string, error) {
	if !ValidDate(date) {
		return nil, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	day, _ := time.ParseInLocation(DateLayout, date, e.cfg.Location)

	booked, err := e.store.LiveTimes(ctx, providerID, date)
	if err != nil {
		return nil, apperr.Internal("list booked times", err)
	}
	free := e.cfg.Hours.FreeTimes(day, booked, e.clock.Now().In(e.cfg.Location))
	return nonNil(free), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
