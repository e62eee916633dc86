package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/projectbarber/barber/services/booking-service/internal/model"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
)

// MemoryStore keeps the ledger in process. Transactions are serialised by one
// mutex and work on a copy that replaces the live state only on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	customers    map[string]model.Customer // by phone
	services     map[string]model.Service
	providers    map[string]model.Provider
	plans        map[string]model.Plan
	appointments map[string]model.Appointment
	payments     map[string]model.Payment
	paymentOrder []string
	webhooks     []model.WebhookEvent
	events       []outbox.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		customers:    map[string]model.Customer{},
		services:     map[string]model.Service{},
		providers:    map[string]model.Provider{},
		plans:        map[string]model.Plan{},
		appointments: map[string]model.Appointment{},
		payments:     map[string]model.Payment{},
	}}
}

func (s *MemoryStore) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.services[svc.ID] = svc
}

func (s *MemoryStore) AddProvider(p model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.providers[p.ID] = p
}

func (s *MemoryStore) AddPlan(p model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.plans[p.ID] = p
}

// WebhookEvents returns the audit log in append order.
func (s *MemoryStore) WebhookEvents() []model.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WebhookEvent(nil), s.state.webhooks...)
}

// Events returns every outbox event enqueued by committed transactions.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.state.events...)
}

func (s *MemoryStore) Appointment(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.appointments[id]
	return a, ok
}

func (s *MemoryStore) Payment(id string) (model.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[id]
	return p, ok
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ListServices(context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.state.services {
		if svc.Active {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListPlans(context.Context) ([]model.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Plan
	for _, p := range s.state.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthlyPriceCents < out[j].MonthlyPriceCents })
	return out, nil
}

func (s *MemoryStore) ListAppointments(_ context.Context, limit int) ([]model.AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	byID := map[string]model.Customer{}
	for _, c := range s.state.customers {
		byID[c.ID] = c
	}
	out := make([]model.AppointmentView, 0, len(s.state.appointments))
	for _, a := range s.state.appointments {
		c := byID[a.CustomerID]
		out = append(out, model.AppointmentView{
			ID:            a.ID,
			Date:          a.Date,
			Time:          a.Time,
			Status:        a.Status,
			PaymentMethod: a.PaymentMethod,
			Notes:         a.Notes,
			CustomerName:  c.Name,
			CustomerPhone: c.Phone,
			ServiceName:   s.state.services[a.ServiceID].Name,
			ProviderName:  s.state.providers[a.ProviderID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Time > out[j].Time
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountAppointmentsByStatus(context.Context) ([]model.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[model.AppointmentStatus]int{}
	for _, a := range s.state.appointments {
		counts[a.Status]++
	}
	out := make([]model.StatusCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, model.StatusCount{Status: st, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *MemoryStore) LiveTimes(_ context.Context, providerID, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := model.Slot{ProviderID: providerID}.Bucket()
	var out []string
	for _, a := range s.state.appointments {
		if a.Status.Live() && a.Date == date && a.Slot().Bucket() == bucket {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (st memState) clone() memState {
	cp := memState{
		customers:    make(map[string]model.Customer, len(st.customers)),
		services:     st.services,
		providers:    st.providers,
		plans:        st.plans,
		appointments: make(map[string]model.Appointment, len(st.appointments)),
		payments:     make(map[string]model.Payment, len(st.payments)),
		paymentOrder: append([]string(nil), st.paymentOrder...),
		webhooks:     append([]model.WebhookEvent(nil), st.webhooks...),
		events:       append([]outbox.Event(nil), st.events...),
	}
	for k, v := range st.customers {
		cp.customers[k] = v
	}
	for k, v := range st.appointments {
		cp.appointments[k] = v
	}
	for k, v := range st.payments {
		if v.PaidAt != nil {
			t := *v.PaidAt
			v.PaidAt = &t
		}
		cp.payments[k] = v
	}
	return cp
}

type memTx struct {
	st *memState
}

func (t *memTx) UpsertCustomer(_ context.Context, c model.Customer) (model.Customer, error) {
	if existing, ok := t.st.customers[c.Phone]; ok {
		existing.Name = c.Name
		t.st.customers[c.Phone] = existing
		return existing, nil
	}
	t.st.customers[c.Phone] = c
	return c, nil
}

func (t *memTx) Service(_ context.Context, id string) (model.Service, error) {
	svc, ok := t.st.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (t *memTx) Provider(_ context.Context, id string) (model.Provider, error) {
	p, ok := t.st.providers[id]
	if !ok {
		return model.Provider{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) SlotTaken(_ context.Context, slot model.Slot) (bool, error) {
	return t.holder(slot, "") != "", nil
}

// holder returns the id of a live appointment other than except occupying slot.
func (t *memTx) holder(slot model.Slot, except string) string {
	key := slot.Key()
	for id, a := range t.st.appointments {
		if id != except && a.Status.Live() && a.Slot().Key() == key {
			return id
		}
	}
	return ""
}

func (t *memTx) InsertAppointment(_ context.Context, a model.Appointment) error {
	if _, ok := t.st.services[a.ServiceID]; !ok {
		return ErrNotFound
	}
	if a.Status.Live() && t.holder(a.Slot(), "") != "" {
		return ErrSlotTaken
	}
	a.UpdatedAt = a.CreatedAt
	t.st.appointments[a.ID] = a
	return nil
}

func (t *memTx) AppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, id string, status model.AppointmentStatus, now time.Time) error {
	a, ok := t.st.appointments[id]
	if !ok {
		return ErrNotFound
	}
	if status.Live() && t.holder(a.Slot(), id) != "" {
		return ErrSlotTaken
	}
	a.Status = status
	a.UpdatedAt = now
	t.st.appointments[id] = a
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p model.Payment) error {
	if _, ok := t.st.appointments[p.AppointmentID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = p.CreatedAt
	t.st.payments[p.ID] = p
	t.st.paymentOrder = append(t.st.paymentOrder, p.ID)
	return nil
}

func (t *memTx) PaymentForUpdate(_ context.Context, ref model.PaymentRef) (model.Payment, error) {
	if ref.ID != "" {
		p, ok := t.st.payments[ref.ID]
		if !ok {
			return model.Payment{}, ErrNotFound
		}
		return p, nil
	}
	if ref.ExternalID == "" {
		return model.Payment{}, ErrNotFound
	}
	for _, id := range t.st.paymentOrder {
		if p := t.st.payments[id]; p.ExternalID == ref.ExternalID {
			return p, nil
		}
	}
	return model.Payment{}, ErrNotFound
}

func (t *memTx) UpdatePayment(_ context.Context, p model.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.PaidAt != nil {
		p.PaidAt = cur.PaidAt
	}
	p.CreatedAt = cur.CreatedAt
	t.st.payments[p.ID] = p
	return nil
}

func (t *memTx) AppendWebhookEvent(_ context.Context, evt model.WebhookEvent) error {
	evt.Payload = append([]byte(nil), evt.Payload...)
	t.st.webhooks = append(t.st.webhooks, evt)
	return nil
}

func (t *memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}
