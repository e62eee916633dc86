package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/projectbarber/barber/libs/db"
	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
)

const liveSlotIndex = "appointments_live_slot_uq"

type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outboxRepo}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: s.outbox})
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, description, duration_minutes, price_cents, active
		FROM services
		WHERE active = true
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list services")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		var svc model.Service
		err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.PriceCents, &svc.Active)
		return svc, err
	})
	return out, errors.Wrap(err, "scan services")
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, description, monthly_price_cents, cuts_per_month, active
		FROM plans
		WHERE active = true
		ORDER BY monthly_price_cents ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list plans")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Plan, error) {
		var p model.Plan
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.MonthlyPriceCents, &p.CutsPerMonth, &p.Active)
		return p, err
	})
	return out, errors.Wrap(err, "scan plans")
}

func (s *PostgresStore) ListAppointments(ctx context.Context, limit int) ([]model.AppointmentView, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT a.id::text,
			to_char(a.appointment_date, 'YYYY-MM-DD'),
			to_char(a.appointment_time, 'HH24:MI'),
			a.status,
			a.payment_method,
			COALESCE(a.notes, ''),
			c.name,
			c.phone,
			s.name,
			COALESCE(p.name, '')
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		JOIN services s ON s.id = a.service_id
		LEFT JOIN providers p ON p.id = a.provider_id
		ORDER BY a.appointment_date DESC, a.appointment_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list appointments")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AppointmentView, error) {
		var v model.AppointmentView
		err := row.Scan(&v.ID, &v.Date, &v.Time, &v.Status, &v.PaymentMethod, &v.Notes,
			&v.CustomerName, &v.CustomerPhone, &v.ServiceName, &v.ProviderName)
		return v, err
	})
	return out, errors.Wrap(err, "scan appointments")
}

func (s *PostgresStore) CountAppointmentsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)::int
		FROM appointments
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, errors.Wrap(err, "count appointments")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StatusCount, error) {
		var c model.StatusCount
		err := row.Scan(&c.Status, &c.Total)
		return c, err
	})
	return out, errors.Wrap(err, "scan counts")
}

func (s *PostgresStore) LiveTimes(ctx context.Context, providerID, date string) ([]string, error) {
	if providerID != "" && !validUUID(providerID) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE provider_id IS NOT DISTINCT FROM $1::uuid
			AND appointment_date = $2::date
			AND status IN ('pending_payment', 'confirmed')
		ORDER BY appointment_time
	`, nullIfEmpty(providerID), date)
	if err != nil {
		return nil, errors.Wrap(err, "live times")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, errors.Wrap(err, "scan live times")
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	var out model.Customer
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customers (id, name, phone, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name
		RETURNING id::text, name, phone, created_at
	`, c.ID, c.Name, c.Phone, c.CreatedAt).Scan(&out.ID, &out.Name, &out.Phone, &out.CreatedAt)
	if err != nil {
		return model.Customer{}, classify(err, "upsert customer")
	}
	return out, nil
}

func (t *pgTx) Service(ctx context.Context, id string) (model.Service, error) {
	if !validUUID(id) {
		return model.Service{}, ErrNotFound
	}
	var svc model.Service
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, name, description, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.PriceCents, &svc.Active)
	if err != nil {
		return model.Service{}, classify(err, "get service")
	}
	return svc, nil
}

func (t *pgTx) Provider(ctx context.Context, id string) (model.Provider, error) {
	if !validUUID(id) {
		return model.Provider{}, ErrNotFound
	}
	var p model.Provider
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, name, active FROM providers WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Active)
	if err != nil {
		return model.Provider{}, classify(err, "get provider")
	}
	return p, nil
}

func (t *pgTx) SlotTaken(ctx context.Context, slot model.Slot) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE provider_id IS NOT DISTINCT FROM $1::uuid
				AND appointment_date = $2::date
				AND appointment_time = $3::time
				AND status IN ('pending_payment', 'confirmed')
		)
	`, nullIfEmpty(slot.ProviderID), slot.Date, slot.Time).Scan(&taken)
	if err != nil {
		return false, classify(err, "check slot")
	}
	return taken, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, customer_id, service_id, provider_id, appointment_date, appointment_time,
			 payment_method, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::uuid, $5::date, $6::time, $7, $8, $9, $10, $10)
	`, a.ID, a.CustomerID, a.ServiceID, nullIfEmpty(a.ProviderID), a.Date, a.Time,
		a.PaymentMethod, nullIfEmpty(a.Notes), a.Status, a.CreatedAt)
	return classify(err, "insert appointment")
}

func (t *pgTx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if !validUUID(id) {
		return model.Appointment{}, ErrNotFound
	}
	var a model.Appointment
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, customer_id::text, service_id::text, COALESCE(provider_id::text, ''),
			to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'),
			payment_method, COALESCE(notes, ''), status, created_at, updated_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&a.ID, &a.CustomerID, &a.ServiceID, &a.ProviderID, &a.Date, &a.Time,
		&a.PaymentMethod, &a.Notes, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, classify(err, "get appointment")
	}
	return a, nil
}

func (t *pgTx) UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, now)
	if err != nil {
		return classify(err, "update appointment status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p model.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments
			(id, appointment_id, provider, external_id, amount_cents, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, p.ID, p.AppointmentID, p.Provider, p.ExternalID, p.AmountCents, p.Status, p.PaidAt, p.CreatedAt)
	return classify(err, "insert payment")
}

func (t *pgTx) PaymentForUpdate(ctx context.Context, ref model.PaymentRef) (model.Payment, error) {
	var row pgx.Row
	switch {
	case ref.ID != "":
		if !validUUID(ref.ID) {
			return model.Payment{}, ErrNotFound
		}
		row = t.tx.QueryRow(ctx, paymentSelect+` WHERE id = $1 FOR UPDATE`, ref.ID)
	case ref.ExternalID != "":
		row = t.tx.QueryRow(ctx, paymentSelect+` WHERE external_id = $1 ORDER BY created_at LIMIT 1 FOR UPDATE`, ref.ExternalID)
	default:
		return model.Payment{}, ErrNotFound
	}
	var p model.Payment
	err := row.Scan(&p.ID, &p.AppointmentID, &p.Provider, &p.ExternalID, &p.AmountCents, &p.Status,
		&p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, classify(err, "get payment")
	}
	return p, nil
}

const paymentSelect = `
	SELECT id::text, appointment_id::text, provider, COALESCE(external_id, ''), amount_cents, status,
		paid_at, created_at, updated_at
	FROM payments`

func (t *pgTx) UpdatePayment(ctx context.Context, p model.Payment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET provider = $2,
			external_id = $3,
			status = $4,
			paid_at = COALESCE(paid_at, $5),
			updated_at = $6
		WHERE id = $1
	`, p.ID, p.Provider, p.ExternalID, p.Status, p.PaidAt, p.UpdatedAt)
	if err != nil {
		return classify(err, "update payment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendWebhookEvent(ctx context.Context, evt model.WebhookEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO webhook_events (id, provider, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, evt.ID, evt.Provider, evt.EventType, string(evt.Payload), evt.ReceivedAt)
	return classify(err, "append webhook event")
}

func (t *pgTx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return errors.Wrap(t.outbox.Insert(ctx, t.tx, evt), "enqueue outbox event")
}

func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == liveSlotIndex:
			return ErrSlotTaken
		case pgErr.Code == "23503":
			return errors.Wrapf(ErrNotFound, "%s: %s", op, pgErr.ConstraintName)
		}
	}
	return errors.Wrap(err, op)
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
