// Package handlers exposes booking, payment and back-office operations over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/projectbarber/barber/libs/auth"
	"github.com/projectbarber/barber/libs/httpx"
	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
	"github.com/projectbarber/barber/services/booking-service/internal/booking"
	"github.com/projectbarber/barber/services/booking-service/internal/payments"
)

type Config struct {
	Booking  *booking.Engine
	Payments *payments.Reconciler

	// Signer is nil when no admin secret is configured; admin routes then fail closed.
	Signer        *auth.Signer
	AdminUser     string
	AdminPassword string
	TokenTTL      time.Duration

	// WebhookToken, when set, must match the X-Webhook-Token header.
	WebhookToken    string
	StripeSecret    string
	StripeTolerance time.Duration

	// Throttle guards admin login. Nil disables it.
	Throttle httpx.Middleware
	// WebhookThrottle guards the provider notification routes, which see
	// bursts from a few egress addresses. Nil disables it.
	WebhookThrottle httpx.Middleware
	// Ping backs GET /health.
	Ping func(ctx context.Context) error

	Logger *slog.Logger
}

type Handler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	passthrough := func(next http.Handler) http.Handler { return next }
	if cfg.Throttle == nil {
		cfg.Throttle = passthrough
	}
	if cfg.WebhookThrottle == nil {
		cfg.WebhookThrottle = passthrough
	}
	return &Handler{cfg: cfg, logger: logger}
}

// Register mounts every route on mux. Unmatched paths answer with a JSON 404.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.banner)
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("GET /services", h.listServices)
	mux.HandleFunc("GET /plans", h.listPlans)
	mux.HandleFunc("GET /availability", h.availability)
	mux.HandleFunc("POST /appointments", h.createAppointment)

	mux.HandleFunc("POST /payments/checkout", h.checkout)
	mux.Handle("POST /payments/webhook", h.cfg.WebhookThrottle(http.HandlerFunc(h.webhook)))
	mux.Handle("POST /payments/webhooks/stripe", h.cfg.WebhookThrottle(http.HandlerFunc(h.stripeWebhook)))

	mux.Handle("POST /admin/login", h.cfg.Throttle(http.HandlerFunc(h.login)))
	mux.Handle("GET /admin/appointments", h.requireAdmin(http.HandlerFunc(h.listAppointments)))
	mux.Handle("GET /admin/dashboard", h.requireAdmin(http.HandlerFunc(h.dashboard)))
	mux.Handle("PATCH /admin/appointments/{id}/status", h.requireAdmin(http.HandlerFunc(h.updateStatus)))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "route not found")
	})
}

func (h *Handler) banner(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Project Barber API online"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Ping != nil {
		if err := h.cfg.Ping(r.Context()); err != nil {
			h.fail(w, r, apperr.Internal("ping database", err))
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}

// decode reports a malformed body itself and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrInvalidJSON.Error())
		return false
	}
	return true
}

// fail writes err as the JSON error envelope. Unclassified errors are logged
// and hidden from the caller.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindConflict && ae.Code != "" {
		httpx.WriteJSON(w, status, map[string]string{"error": ae.Msg, "code": ae.Code})
		return
	}
	httpx.WriteError(w, status, apperr.PublicMessage(err))
}

var errNoSigner = errors.New("ADMIN_JWT_SECRET not configured")
