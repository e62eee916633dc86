package outbox

import "encoding/json"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"
	AggregatePayment     = "payment"
)

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentConfirmed     = "booking.appointment.confirmed.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventPaymentCreated           = "payments.payment.created.v1"
	EventPaymentStatusChanged     = "payments.payment.status_changed.v1"
)

// NewEvent marshals payload as JSON.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
