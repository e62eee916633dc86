// Package payments creates checkouts and folds provider notifications into
// payment and appointment state.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/projectbarber/barber/libs/otel"
	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
	"github.com/projectbarber/barber/services/booking-service/internal/clock"
	"github.com/projectbarber/barber/services/booking-service/internal/ids"
	"github.com/projectbarber/barber/services/booking-service/internal/metrics"
	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
	"github.com/projectbarber/barber/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultProvider  = "manual_pix"
	DefaultEventType = "payment_update"
)

var tracer = otelx.Tracer("booking-service/payments")

type Config struct {
	// Provider is used when a checkout names none. Defaults to manual_pix.
	Provider     string
	Instructions *InstructionBook
}

type Reconciler struct {
	store  storage.Store
	clock  clock.Clock
	ids    ids.Generator
	logger *slog.Logger
	cfg    Config
}

func NewReconciler(store storage.Store, clk clock.Clock, idGen ids.Generator, logger *slog.Logger, cfg Config) *Reconciler {
	if strings.TrimSpace(cfg.Provider) == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Instructions == nil {
		cfg.Instructions = NewInstructionBook("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, clock: clk, ids: idGen, logger: logger, cfg: cfg}
}

type CheckoutRequest struct {
	AppointmentID string
	Provider      string
	// AmountCents overrides the service price when positive.
	AmountCents int64
}

type CheckoutResult struct {
	Payment      model.Payment `json:"payment"`
	Instructions Instructions  `json:"instructions"`
}

// Checkout opens a pending payment for an appointment that can still be paid.
func (r *Reconciler) Checkout(ctx context.Context, req CheckoutRequest) (res CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.Checkout")
	defer func() { otelx.EndSpan(span, err) }()

	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Provider = strings.TrimSpace(req.Provider)
	if req.AppointmentID == "" {
		return CheckoutResult{}, apperr.Validation("appointmentId is required")
	}
	if req.Provider == "" {
		req.Provider = r.cfg.Provider
	}
	span.SetAttributes(attribute.String("appointment.id", req.AppointmentID), attribute.String("payment.provider", req.Provider))

	now := r.clock.Now()
	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, req.AppointmentID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("appointment", "Appointment not found")
		}
		if err != nil {
			return err
		}
		if !appt.Status.Payable() {
			return apperr.Conflict(apperr.CodeNotPayable, "Appointment is not eligible for payment")
		}

		svc, err := tx.Service(ctx, appt.ServiceID)
		if err != nil {
			return err
		}
		amount := svc.PriceCents
		if req.AmountCents > 0 {
			amount = req.AmountCents
		}

		p := model.Payment{
			ID:            r.ids.NewID(),
			AppointmentID: appt.ID,
			Provider:      req.Provider,
			ExternalID:    r.ids.Ref("pay_"),
			AmountCents:   amount,
			Status:        model.PaymentPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}

		evt, err := outbox.NewEvent(outbox.AggregatePayment, p.ID, outbox.EventPaymentCreated, map[string]any{
			"payment_id":     p.ID,
			"appointment_id": p.AppointmentID,
			"provider":       p.Provider,
			"external_id":    p.ExternalID,
			"amount_cents":   p.AmountCents,
		})
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, evt); err != nil {
			return err
		}

		res = CheckoutResult{Payment: p, Instructions: r.cfg.Instructions.For(p.Provider)}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, apperr.Classified("create checkout", err)
	}

	metrics.CheckoutsCreated.Inc()
	r.logger.InfoContext(ctx, "checkout created",
		"payment_id", res.Payment.ID,
		"appointment_id", res.Payment.AppointmentID,
		"provider", res.Payment.Provider,
	)
	return res, nil
}

// Notification is a provider's report about one payment.
type Notification struct {
	PaymentID  string
	ExternalID string
	Provider   string
	EventType  string
	Status     string
	// Payload is the raw body kept in the audit log.
	Payload []byte
}

type ReconcileResult struct {
	Payment model.Payment `json:"payment"`
	// Changed is false when the notification left the payment as it was.
	Changed bool `json:"-"`
	// Stale marks a non-paid notification that arrived after the payment was paid.
	Stale bool `json:"-"`
	// AppointmentConfirmed is set when this notification confirmed the appointment.
	AppointmentConfirmed bool `json:"-"`
}

// ReconcileWebhook applies a notification in one transaction. Redelivering the
// same notification only grows the audit log. Once paid, a payment stays paid
// and keeps its first paid_at.
func (r *Reconciler) ReconcileWebhook(ctx context.Context, n Notification) (res ReconcileResult, err error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "payments.ReconcileWebhook")
	defer func() {
		metrics.ReconcileDuration.UpdateDuration(started)
		if err != nil {
			metrics.WebhooksRejected.Inc()
		}
		otelx.EndSpan(span, err)
	}()

	n.PaymentID = strings.TrimSpace(n.PaymentID)
	n.ExternalID = strings.TrimSpace(n.ExternalID)
	n.Provider = strings.TrimSpace(n.Provider)
	n.EventType = strings.TrimSpace(n.EventType)
	if n.PaymentID == "" && n.ExternalID == "" {
		return ReconcileResult{}, apperr.Validation("paymentId or externalId is required")
	}
	if strings.TrimSpace(n.Status) == "" {
		return ReconcileResult{}, apperr.Validation("paymentStatus is required")
	}
	status, ok := NormalizeStatus(n.Status)
	if !ok {
		return ReconcileResult{}, apperr.Validation("Invalid paymentStatus")
	}
	if n.Provider == "" {
		n.Provider = DefaultProvider
	}
	if n.EventType == "" {
		n.EventType = DefaultEventType
	}
	span.SetAttributes(
		attribute.String("payment.provider", n.Provider),
		attribute.String("payment.status", string(status)),
	)

	now := r.clock.Now()
	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.PaymentForUpdate(ctx, model.PaymentRef{ID: n.PaymentID, ExternalID: n.ExternalID})
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("payment", "Payment not found")
		}
		if err != nil {
			return err
		}

		res, err = r.apply(ctx, tx, cur, n, status, now)
		if err != nil {
			return err
		}

		return tx.AppendWebhookEvent(ctx, model.WebhookEvent{
			ID:         r.ids.NewID(),
			Provider:   n.Provider,
			EventType:  n.EventType,
			Payload:    auditPayload(n),
			ReceivedAt: now,
		})
	})
	if err != nil {
		return ReconcileResult{}, apperr.Classified("process webhook", err)
	}

	switch {
	case res.Stale:
		metrics.WebhooksStale.Inc()
		r.logger.WarnContext(ctx, "stale payment notification ignored",
			"payment_id", res.Payment.ID,
			"status", string(status),
			"event_type", n.EventType,
		)
	case res.Changed:
		metrics.WebhooksApplied.Inc()
		r.logger.InfoContext(ctx, "payment reconciled",
			"payment_id", res.Payment.ID,
			"status", string(res.Payment.Status),
			"appointment_confirmed", res.AppointmentConfirmed,
		)
	default:
		metrics.WebhooksUnchanged.Inc()
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, tx storage.Tx, cur model.Payment, n Notification, status model.PaymentStatus, now time.Time) (ReconcileResult, error) {
	if cur.Status == model.PaymentPaid && status != model.PaymentPaid {
		return ReconcileResult{Payment: cur, Stale: true}, nil
	}

	next := cur
	next.Provider = n.Provider
	next.Status = status
	switch {
	case n.ExternalID != "":
		next.ExternalID = n.ExternalID
	case next.ExternalID == "":
		next.ExternalID = r.ids.Ref("evt_")
	}
	if status == model.PaymentPaid && next.PaidAt == nil {
		paidAt := now
		next.PaidAt = &paidAt
	}

	res := ReconcileResult{Payment: cur}
	if next.Provider != cur.Provider || next.ExternalID != cur.ExternalID || next.Status != cur.Status || (cur.PaidAt == nil) != (next.PaidAt == nil) {
		next.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, next); err != nil {
			return ReconcileResult{}, err
		}
		res.Payment = next
		res.Changed = true
	}

	if next.Status != cur.Status {
		evt, err := outbox.NewEvent(outbox.AggregatePayment, next.ID, outbox.EventPaymentStatusChanged, map[string]any{
			"payment_id":     next.ID,
			"appointment_id": next.AppointmentID,
			"from":           cur.Status,
			"to":             next.Status,
			"provider":       next.Provider,
			"external_id":    next.ExternalID,
		})
		if err != nil {
			return ReconcileResult{}, err
		}
		if err := tx.Enqueue(ctx, evt); err != nil {
			return ReconcileResult{}, err
		}
	}

	if status == model.PaymentPaid {
		confirmed, err := r.confirmAppointment(ctx, tx, next, now)
		if err != nil {
			return ReconcileResult{}, err
		}
		res.AppointmentConfirmed = confirmed
	}
	return res, nil
}

// confirmAppointment moves a pending_payment appointment to confirmed. Any
// other status is left alone.
func (r *Reconciler) confirmAppointment(ctx context.Context, tx storage.Tx, p model.Payment, now time.Time) (bool, error) {
	appt, err := tx.AppointmentForUpdate(ctx, p.AppointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if appt.Status != model.AppointmentPendingPayment {
		return false, nil
	}
	if err := tx.UpdateAppointmentStatus(ctx, appt.ID, model.AppointmentConfirmed, now); err != nil {
		return false, err
	}

	evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, outbox.EventAppointmentConfirmed, map[string]any{
		"appointment_id":   appt.ID,
		"payment_id":       p.ID,
		"appointment_date": appt.Date,
		"appointment_time": appt.Time,
		"confirmed_at":     now.Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	return true, tx.Enqueue(ctx, evt)
}

// auditPayload keeps the raw body when it is JSON and otherwise records the
// normalized fields.
func auditPayload(n Notification) []byte {
	if len(n.Payload) > 0 && json.Valid(n.Payload) {
		return n.Payload
	}
	b, err := json.Marshal(map[string]string{
		"paymentId":     n.PaymentID,
		"externalId":    n.ExternalID,
		"provider":      n.Provider,
		"eventType":     n.EventType,
		"paymentStatus": n.Status,
	})
	if err != nil {
		return []byte("{}")
	}
	return b
}
