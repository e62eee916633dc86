package payments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func TestParseStripeEvent_PaymentIntent(t *testing.T) {
	cases := map[string]string{
		"payment_intent.succeeded":      "succeeded",
		"payment_intent.processing":     "pending",
		"payment_intent.payment_failed": "failed",
		"payment_intent.canceled":       "canceled",
	}
	for eventType, status := range cases {
		body, sig := signedEvent(t, eventType, map[string]any{
			"id":       "pi_123",
			"object":   "payment_intent",
			"metadata": map[string]any{"payment_id": "11111111-2222-3333-4444-555555555555"},
		})
		n, err := ParseStripeEvent(body, sig, testSecret, 0)
		require.NoError(t, err, eventType)
		assert.Equal(t, status, n.Status)
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", n.PaymentID)
		assert.Empty(t, n.ExternalID)
		assert.Equal(t, ProviderStripe, n.Provider)
		assert.Equal(t, eventType, n.EventType)
		assert.Equal(t, body, n.Payload)

		_, ok := NormalizeStatus(n.Status)
		assert.True(t, ok, "status %q must normalize", n.Status)
	}
}

func TestParseStripeEvent_CheckoutSession(t *testing.T) {
	body, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_123",
		"object":         "checkout.session",
		"payment_status": "unpaid",
	})
	n, err := ParseStripeEvent(body, sig, testSecret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "pending", n.Status)
	assert.Equal(t, "cs_test_123", n.ExternalID, "object id is the fallback reference")

	body, sig = signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_123",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]any{"external_id": "pay_00112233aabbccdd"},
	})
	n, err = ParseStripeEvent(body, sig, testSecret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "paid", n.Status)
	assert.Equal(t, "pay_00112233aabbccdd", n.ExternalID)

	body, sig = signedEvent(t, "checkout.session.expired", map[string]any{"id": "cs_test_9", "object": "checkout.session"})
	n, err = ParseStripeEvent(body, sig, testSecret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", n.Status)
}

func TestParseStripeEvent_Rejects(t *testing.T) {
	body, sig := signedEvent(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "object": "payment_intent"})

	_, err := ParseStripeEvent(body, sig, "whsec_other", time.Minute)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedEvent))

	body, sig = signedEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	_, err = ParseStripeEvent(body, sig, testSecret, time.Minute)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}
