package model

import "time"

// UnassignedProvider is the slot bucket shared by appointments booked without a provider.
const UnassignedProvider = "unassigned"

type AppointmentStatus string

const (
	AppointmentPendingPayment AppointmentStatus = "pending_payment"
	AppointmentConfirmed      AppointmentStatus = "confirmed"
	AppointmentCancelled      AppointmentStatus = "cancelled"
	AppointmentCompleted      AppointmentStatus = "completed"
)

// AppointmentStatuses lists every status in lifecycle order.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentPendingPayment,
	AppointmentConfirmed,
	AppointmentCancelled,
	AppointmentCompleted,
}

// Live appointments occupy their slot.
func (s AppointmentStatus) Live() bool {
	return s == AppointmentPendingPayment || s == AppointmentConfirmed
}

// Payable appointments may receive a checkout.
func (s AppointmentStatus) Payable() bool {
	return s != AppointmentCancelled && s != AppointmentCompleted
}

func ParseAppointmentStatus(raw string) (AppointmentStatus, bool) {
	for _, s := range AppointmentStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

const DefaultPaymentMethod = "onsite"

// Slot identifies a bookable position. ProviderID "" means unassigned.
type Slot struct {
	ProviderID string
	Date       string
	Time       string
}

// Bucket returns the provider key used for uniqueness.
func (s Slot) Bucket() string {
	if s.ProviderID == "" {
		return UnassignedProvider
	}
	return s.ProviderID
}

func (s Slot) Key() string {
	return s.Bucket() + "|" + s.Date + "|" + s.Time
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"-"`
}

type Provider struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"-"`
}

type Plan struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
	CutsPerMonth      int    `json:"cuts_per_month"`
	Active            bool   `json:"-"`
}

type Appointment struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer_id"`
	ServiceID     string            `json:"service_id"`
	ProviderID    string            `json:"barber_id,omitempty"`
	Date          string            `json:"appointment_date"`
	Time          string            `json:"appointment_time"`
	PaymentMethod string            `json:"payment_method"`
	Notes         string            `json:"notes,omitempty"`
	Status        AppointmentStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (a Appointment) Slot() Slot {
	return Slot{ProviderID: a.ProviderID, Date: a.Date, Time: a.Time}
}

// AppointmentView is an appointment joined with display names for the back office.
type AppointmentView struct {
	ID            string            `json:"id"`
	Date          string            `json:"appointment_date"`
	Time          string            `json:"appointment_time"`
	Status        AppointmentStatus `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	Notes         string            `json:"notes,omitempty"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	ServiceName   string            `json:"service_name"`
	ProviderName  string            `json:"barber_name,omitempty"`
}

type StatusCount struct {
	Status AppointmentStatus `json:"status"`
	Total  int               `json:"total"`
}

type Payment struct {
	ID            string        `json:"id"`
	AppointmentID string        `json:"appointment_id"`
	Provider      string        `json:"provider"`
	ExternalID    string        `json:"external_id"`
	AmountCents   int64         `json:"amount_cents"`
	Status        PaymentStatus `json:"status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PaymentRef locates a payment by id, or by external reference when ID is empty.
type PaymentRef struct {
	ID         string
	ExternalID string
}

// WebhookEvent is one raw provider notification kept for audit.
type WebhookEvent struct {
	ID         string
	Provider   string
	EventType  string
	Payload    []byte
	ReceivedAt time.Time
}
