package payments

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
	"github.com/projectbarber/barber/services/booking-service/internal/booking"
	"github.com/projectbarber/barber/services/booking-service/internal/clock"
	"github.com/projectbarber/barber/services/booking-service/internal/ids"
	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
	"github.com/projectbarber/barber/services/booking-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ReconcilerSuite struct {
	suite.Suite

	ctx        context.Context
	store      *storage.MemoryStore
	clock      *clock.Fixed
	engine     *booking.Engine
	reconciler *Reconciler

	appointment model.Appointment
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStore()
	s.store.AddService(model.Service{ID: "S1", Name: "Corte", DurationMinutes: 30, PriceCents: 5000, Active: true})
	s.clock = clock.NewFixed(time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC))
	s.engine = booking.NewEngine(s.store, s.clock, ids.UUID{}, nil, booking.Config{})
	s.reconciler = NewReconciler(s.store, s.clock, ids.UUID{}, nil, Config{Instructions: NewInstructionBook("pix@barber.test")})

	// Scenario A.
	res, err := s.engine.CreateAppointment(s.ctx, booking.CreateRequest{
		Name:      "Maria",
		Phone:     "11999999999",
		ServiceID: "S1",
		Date:      "2025-03-01",
		Time:      "14:00",
	})
	s.Require().NoError(err)
	s.Require().Equal(model.AppointmentPendingPayment, res.Appointment.Status)
	s.appointment = res.Appointment

	_, err = s.engine.CreateAppointment(s.ctx, booking.CreateRequest{
		Name:      "Pedro",
		Phone:     "11988888888",
		ServiceID: "S1",
		Date:      "2025-03-01",
		Time:      "14:00",
	})
	s.Require().True(apperr.Is(err, apperr.KindConflict))
}

func (s *ReconcilerSuite) checkout() model.Payment {
	res, err := s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: s.appointment.ID})
	s.Require().NoError(err)
	return res.Payment
}

func (s *ReconcilerSuite) appointmentStatus() model.AppointmentStatus {
	a, ok := s.store.Appointment(s.appointment.ID)
	s.Require().True(ok)
	return a.Status
}

func (s *ReconcilerSuite) TestCheckoutUsesListPrice() {
	res, err := s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: s.appointment.ID})
	s.Require().NoError(err)

	s.Equal(int64(5000), res.Payment.AmountCents)
	s.Equal(model.PaymentPending, res.Payment.Status)
	s.Equal(DefaultProvider, res.Payment.Provider)
	s.Regexp(`^pay_[0-9a-f]{16}$`, res.Payment.ExternalID)
	s.Nil(res.Payment.PaidAt)
	s.Equal(Instructions{Type: DefaultProvider, Message: defaultInstructionMessage, PixKey: "pix@barber.test"}, res.Instructions)
}

func (s *ReconcilerSuite) TestCheckoutOverrideAndProvider() {
	res, err := s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: s.appointment.ID, Provider: "mercadopago", AmountCents: 1234})
	s.Require().NoError(err)
	s.Equal(int64(1234), res.Payment.AmountCents)
	s.Equal("mercadopago", res.Payment.Provider)

	res, err = s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: s.appointment.ID, AmountCents: -10})
	s.Require().NoError(err)
	s.Equal(int64(5000), res.Payment.AmountCents)
}

func (s *ReconcilerSuite) TestCheckoutRejects() {
	_, err := s.reconciler.Checkout(s.ctx, CheckoutRequest{})
	s.True(apperr.Is(err, apperr.KindValidation))

	_, err = s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: "missing"})
	s.True(apperr.Is(err, apperr.KindNotFound))

	for _, st := range []model.AppointmentStatus{model.AppointmentCancelled, model.AppointmentCompleted} {
		_, err = s.engine.UpdateStatus(s.ctx, s.appointment.ID, string(st))
		s.Require().NoError(err)
		_, err = s.reconciler.Checkout(s.ctx, CheckoutRequest{AppointmentID: s.appointment.ID})
		s.Equal(apperr.CodeNotPayable, apperr.CodeOf(err))
	}
}

func (s *ReconcilerSuite) TestPaidConfirmsAppointment() {
	p := s.checkout()
	s.clock.Advance(time.Minute)

	res, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{ExternalID: p.ExternalID, Status: "approved"})
	s.Require().NoError(err)

	s.True(res.Changed)
	s.True(res.AppointmentConfirmed)
	s.Equal(model.PaymentPaid, res.Payment.Status)
	s.Require().NotNil(res.Payment.PaidAt)
	s.Equal(s.clock.Now(), *res.Payment.PaidAt)
	s.Equal(model.AppointmentConfirmed, s.appointmentStatus())
	s.Len(s.store.WebhookEvents(), 1)

	var types []string
	for _, evt := range s.store.Events() {
		types = append(types, evt.EventType)
	}
	s.Contains(types, outbox.EventPaymentStatusChanged)
	s.Contains(types, outbox.EventAppointmentConfirmed)
}

func (s *ReconcilerSuite) TestReplayOnlyGrowsAuditLog() {
	p := s.checkout()
	n := Notification{ExternalID: p.ExternalID, Status: "approved", Payload: []byte(`{"externalId":"x","paymentStatus":"approved"}`)}

	_, err := s.reconciler.ReconcileWebhook(s.ctx, n)
	s.Require().NoError(err)
	paid, _ := s.store.Payment(p.ID)
	events := len(s.store.Events())

	s.clock.Advance(time.Hour)
	res, err := s.reconciler.ReconcileWebhook(s.ctx, n)
	s.Require().NoError(err)
	s.False(res.Changed)
	s.False(res.AppointmentConfirmed)

	again, _ := s.store.Payment(p.ID)
	s.Equal(paid, again)
	s.Equal(events, len(s.store.Events()))
	s.Equal(model.AppointmentConfirmed, s.appointmentStatus())

	audit := s.store.WebhookEvents()
	s.Len(audit, 2)
	s.JSONEq(string(n.Payload), string(audit[1].Payload))
}

func (s *ReconcilerSuite) TestPaidAtIsWriteOnce() {
	p := s.checkout()
	_, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "paid"})
	s.Require().NoError(err)
	first, _ := s.store.Payment(p.ID)

	s.clock.Advance(24 * time.Hour)
	_, err = s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "succeeded", ExternalID: "pi_new"})
	s.Require().NoError(err)
	second, _ := s.store.Payment(p.ID)

	s.Equal("pi_new", second.ExternalID)
	s.Require().NotNil(second.PaidAt)
	s.Equal(*first.PaidAt, *second.PaidAt)
}

func (s *ReconcilerSuite) TestStaleNotificationAfterPaid() {
	p := s.checkout()
	_, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "paid"})
	s.Require().NoError(err)
	paid, _ := s.store.Payment(p.ID)

	for _, late := range []string{"pending", "failed", "canceled"} {
		res, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: late, Provider: "other"})
		s.Require().NoError(err)
		s.True(res.Stale, late)
		s.Equal(model.PaymentPaid, res.Payment.Status)
	}

	after, _ := s.store.Payment(p.ID)
	s.Equal(paid, after)
	s.Len(s.store.WebhookEvents(), 4)
	s.Equal(model.AppointmentConfirmed, s.appointmentStatus())
}

func (s *ReconcilerSuite) TestCascadeGuard() {
	p := s.checkout()
	_, err := s.engine.UpdateStatus(s.ctx, s.appointment.ID, string(model.AppointmentCancelled))
	s.Require().NoError(err)

	res, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "paid"})
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, res.Payment.Status)
	s.False(res.AppointmentConfirmed)
	s.Equal(model.AppointmentCancelled, s.appointmentStatus())
}

func (s *ReconcilerSuite) TestFailedThenPaid() {
	p := s.checkout()
	res, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "rejected"})
	s.Require().NoError(err)
	s.Equal(model.PaymentFailed, res.Payment.Status)
	s.Nil(res.Payment.PaidAt)
	s.Equal(model.AppointmentPendingPayment, s.appointmentStatus())

	res, err = s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "PAID"})
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, res.Payment.Status)
	s.Equal(model.AppointmentConfirmed, s.appointmentStatus())
}

func (s *ReconcilerSuite) TestInvalidNotificationsMutateNothing() {
	p := s.checkout()
	before, _ := s.store.Payment(p.ID)
	events := len(s.store.Events())

	cases := []struct {
		n    Notification
		kind apperr.Kind
	}{
		{Notification{ExternalID: p.ExternalID, Status: "bogus"}, apperr.KindValidation},
		{Notification{Status: "paid"}, apperr.KindValidation},
		{Notification{PaymentID: p.ID}, apperr.KindValidation},
		{Notification{ExternalID: "pay_unknown", Status: "paid"}, apperr.KindNotFound},
	}
	for _, c := range cases {
		_, err := s.reconciler.ReconcileWebhook(s.ctx, c.n)
		s.True(apperr.Is(err, c.kind), "%+v: %v", c.n, err)
	}

	after, _ := s.store.Payment(p.ID)
	s.Equal(before, after)
	s.Empty(s.store.WebhookEvents())
	s.Equal(events, len(s.store.Events()))
	s.Equal(model.AppointmentPendingPayment, s.appointmentStatus())
}

func (s *ReconcilerSuite) TestAuditDefaults() {
	p := s.checkout()
	_, err := s.reconciler.ReconcileWebhook(s.ctx, Notification{PaymentID: p.ID, Status: "waiting", Payload: []byte("not json")})
	s.Require().NoError(err)

	audit := s.store.WebhookEvents()
	s.Require().Len(audit, 1)
	s.Equal(DefaultProvider, audit[0].Provider)
	s.Equal(DefaultEventType, audit[0].EventType)
	s.JSONEq(`{"paymentId":"`+p.ID+`","externalId":"","provider":"manual_pix","eventType":"payment_update","paymentStatus":"waiting"}`, string(audit[0].Payload))
}

func TestNormalizeStatusIsTotal(t *testing.T) {
	want := map[string]model.PaymentStatus{
		"paid": model.PaymentPaid, "approved": model.PaymentPaid, "succeeded": model.PaymentPaid, "success": model.PaymentPaid,
		"pending": model.PaymentPending, "in_process": model.PaymentPending, "waiting": model.PaymentPending,
		"failed": model.PaymentFailed, "rejected": model.PaymentFailed, "error": model.PaymentFailed,
		"cancelled": model.PaymentCancelled, "canceled": model.PaymentCancelled, "voided": model.PaymentCancelled,
	}
	for raw, status := range want {
		got, ok := NormalizeStatus("  " + raw + " ")
		assert.True(t, ok, raw)
		assert.Equal(t, status, got, raw)

		got, ok = NormalizeStatus(strings.ToUpper(raw))
		assert.True(t, ok, "upper-case %s", raw)
		assert.Equal(t, status, got)
	}
	for _, raw := range []string{"", "bogus", "refunded", "paid!", "in process"} {
		_, ok := NormalizeStatus(raw)
		assert.False(t, ok, raw)
	}
}

func TestLoadInstructionBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
payments:
  providers:
    manual_pix:
      message: "Pague via PIX e envie o comprovante."
      pix-key: "barbearia@pix.test"
    card:
      message: "Pague no balcão."
`), 0o600))

	book, err := LoadInstructionBook(path, "fallback-key")
	require.NoError(t, err)

	pix := book.For("manual_pix")
	assert.Equal(t, "Pague via PIX e envie o comprovante.", pix.Message)
	assert.Equal(t, "barbearia@pix.test", pix.PixKey)

	card := book.For("card")
	assert.Equal(t, "fallback-key", card.PixKey)

	other := book.For("stripe")
	assert.Equal(t, defaultInstructionMessage, other.Message)
	assert.Equal(t, "stripe", other.Type)

	_, err = LoadInstructionBook(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

type pinnedIDs struct{ n int }

func (p *pinnedIDs) NewID() string {
	p.n++
	return "id-" + strconv.Itoa(p.n)
}

func (p *pinnedIDs) Ref(prefix string) string { return prefix + "pinned" }

func TestReferencesComeFromGenerator(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.AddService(model.Service{ID: "S1", Name: "Corte", PriceCents: 5000, Active: true})
	clk := clock.NewFixed(time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC))
	gen := &pinnedIDs{}

	engine := booking.NewEngine(store, clk, gen, nil, booking.Config{})
	created, err := engine.CreateAppointment(ctx, booking.CreateRequest{
		Name: "Maria", Phone: "11999999999", ServiceID: "S1", Date: "2025-03-01", Time: "14:00",
	})
	require.NoError(t, err)

	r := NewReconciler(store, clk, gen, nil, Config{})
	checkout, err := r.Checkout(ctx, CheckoutRequest{AppointmentID: created.Appointment.ID})
	require.NoError(t, err)
	assert.Equal(t, "pay_pinned", checkout.Payment.ExternalID)

	// A payment without an external reference gets one minted on first notice.
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertPayment(ctx, model.Payment{
			ID: "bare", AppointmentID: created.Appointment.ID, Provider: DefaultProvider,
			AmountCents: 5000, Status: model.PaymentPending, CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
		})
	}))
	res, err := r.ReconcileWebhook(ctx, Notification{PaymentID: "bare", Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, "evt_pinned", res.Payment.ExternalID)
	assert.True(t, res.Changed)
}
