package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const ProviderStripe = "stripe"

// ErrUnsupportedEvent marks a verified Stripe event that carries no payment status.
var ErrUnsupportedEvent = errors.New("payments: unsupported stripe event")

// ParseStripeEvent verifies a Stripe-signed body and converts it into a
// Notification. Object metadata keys payment_id and external_id locate the
// payment; the Stripe object id is the fallback external reference.
func ParseStripeEvent(body []byte, signature, secret string, tolerance time.Duration) (Notification, error) {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	evt, err := webhook.ConstructEventWithTolerance(body, signature, secret, tolerance)
	if err != nil {
		return Notification{}, fmt.Errorf("verify stripe signature: %w", err)
	}

	n := Notification{
		Provider:  ProviderStripe,
		EventType: string(evt.Type),
		Payload:   body,
	}

	var (
		objectID string
		metadata map[string]string
	)
	switch evt.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return Notification{}, fmt.Errorf("decode payment intent: %w", err)
		}
		objectID, metadata = pi.ID, pi.Metadata
		n.Status = paymentIntentStatus(evt.Type)

	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return Notification{}, fmt.Errorf("decode checkout session: %w", err)
		}
		objectID, metadata = session.ID, session.Metadata
		n.Status = checkoutSessionStatus(evt.Type, session.PaymentStatus)

	default:
		return n, ErrUnsupportedEvent
	}

	n.PaymentID = strings.TrimSpace(metadata["payment_id"])
	n.ExternalID = strings.TrimSpace(metadata["external_id"])
	if n.PaymentID == "" && n.ExternalID == "" {
		n.ExternalID = objectID
	}
	return n, nil
}

func paymentIntentStatus(t stripe.EventType) string {
	switch t {
	case stripe.EventTypePaymentIntentSucceeded:
		return string(stripe.PaymentIntentStatusSucceeded)
	case stripe.EventTypePaymentIntentProcessing:
		return "pending"
	case stripe.EventTypePaymentIntentPaymentFailed:
		return "failed"
	default:
		return string(stripe.PaymentIntentStatusCanceled)
	}
}

func checkoutSessionStatus(t stripe.EventType, ps stripe.CheckoutSessionPaymentStatus) string {
	switch t {
	case stripe.EventTypeCheckoutSessionCompleted:
		if ps == stripe.CheckoutSessionPaymentStatusPaid || ps == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			return "paid"
		}
		return "pending"
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return "paid"
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return "failed"
	default:
		return "cancelled"
	}
}
