// Command webhook-sim posts a payment notification to a running booking service,
// either as a plain token-authenticated webhook or as a Stripe-signed event.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/projectbarber/barber/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type options struct {
	baseURL    string
	mode       string
	paymentID  string
	externalID string
	provider   string
	status     string
	eventType  string
	token      string
	secret     string
}

func main() {
	if err := run(os.Args[1:], http.DefaultClient, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, client *http.Client, stdout io.Writer) error {
	var o options
	fs := flag.NewFlagSet("webhook-sim", flag.ContinueOnError)
	fs.StringVar(&o.baseURL, "base-url", config.String("BASE_URL", "http://localhost:3000"), "booking service base url")
	fs.StringVar(&o.mode, "mode", config.String("WEBHOOK_MODE", "plain"), "plain or stripe")
	fs.StringVar(&o.paymentID, "payment-id", config.String("PAYMENT_ID", ""), "internal payment id")
	fs.StringVar(&o.externalID, "external-id", config.String("EXTERNAL_ID", ""), "provider reference")
	fs.StringVar(&o.provider, "provider", config.String("PAYMENT_PROVIDER", ""), "provider name (plain mode)")
	fs.StringVar(&o.status, "status", config.String("PAYMENT_STATUS", "paid"), "payment status (plain mode)")
	fs.StringVar(&o.eventType, "type", config.String("STRIPE_EVENT_TYPE", string(stripe.EventTypeCheckoutSessionCompleted)), "stripe event type (stripe mode)")
	fs.StringVar(&o.token, "token", config.String("PAYMENT_WEBHOOK_TOKEN", ""), "X-Webhook-Token value (plain mode)")
	fs.StringVar(&o.secret, "secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe signing secret (stripe mode)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := buildRequest(o, time.Now().UTC())
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Fprintf(stdout, "status=%d\n%s\n", resp.StatusCode, bytes.TrimSpace(body))
	return nil
}

func buildRequest(o options, now time.Time) (*http.Request, error) {
	if strings.TrimSpace(o.paymentID) == "" && strings.TrimSpace(o.externalID) == "" {
		return nil, errors.New("payment-id or external-id is required")
	}
	base := strings.TrimRight(o.baseURL, "/")

	switch o.mode {
	case "plain":
		payload, err := json.Marshal(map[string]string{
			"paymentId":     o.paymentID,
			"externalId":    o.externalID,
			"provider":      o.provider,
			"paymentStatus": o.status,
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, base+"/payments/webhook", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if o.token != "" {
			req.Header.Set("X-Webhook-Token", o.token)
		}
		return req, nil

	case "stripe":
		if strings.TrimSpace(o.secret) == "" {
			return nil, errors.New("STRIPE_WEBHOOK_SECRET is required in stripe mode")
		}
		payload, err := stripeEvent(o, now)
		if err != nil {
			return nil, err
		}
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    o.secret,
			Timestamp: now,
			Scheme:    "v1",
		})
		req, err := http.NewRequest(http.MethodPost, base+"/payments/webhooks/stripe", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Stripe-Signature", signed.Header)
		return req, nil

	default:
		return nil, fmt.Errorf("unknown mode %q", o.mode)
	}
}

func stripeEvent(o options, now time.Time) ([]byte, error) {
	metadata := map[string]string{}
	if o.paymentID != "" {
		metadata["payment_id"] = o.paymentID
	}
	if o.externalID != "" {
		metadata["external_id"] = o.externalID
	}

	var object map[string]any
	switch {
	case strings.HasPrefix(o.eventType, "payment_intent."):
		object = map[string]any{"id": "pi_sim", "object": "payment_intent", "metadata": metadata}
	case strings.HasPrefix(o.eventType, "checkout.session."):
		object = map[string]any{
			"id":             "cs_sim",
			"object":         "checkout.session",
			"payment_status": string(stripe.CheckoutSessionPaymentStatusPaid),
			"metadata":       metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", o.eventType)
	}

	return json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_sim_%d", now.UnixNano()),
		"object":      "event",
		"created":     now.Unix(),
		"type":        o.eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}
