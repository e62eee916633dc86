package handlers

import (
	"net/http"
	"strings"

	"github.com/projectbarber/barber/libs/httpx"
	"github.com/projectbarber/barber/services/booking-service/internal/booking"
	"github.com/projectbarber/barber/services/booking-service/internal/payments"
)

type createAppointmentRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	ServiceID       string `json:"serviceId"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	BarberID        string `json:"barberId"`
	PaymentMethod   string `json:"paymentMethod"`
	Notes           string `json:"notes"`
}

type checkoutRequest struct {
	AppointmentID string `json:"appointmentId"`
	Provider      string `json:"provider"`
	AmountCents   int64  `json:"amountCents"`
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.cfg.Booking.Services(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.cfg.Booking.Plans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	providerID := strings.TrimSpace(r.URL.Query().Get("barberId"))
	if providerID == "" {
		providerID = strings.TrimSpace(r.URL.Query().Get("providerId"))
	}
	times, err := h.cfg.Booking.Availability(r.Context(), date, providerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":     date,
		"barberId": providerID,
		"times":    times,
	})
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.cfg.Booking.CreateAppointment(r.Context(), booking.CreateRequest{
		Name:          req.Name,
		Phone:         req.Phone,
		ServiceID:     req.ServiceID,
		Date:          req.AppointmentDate,
		Time:          req.AppointmentTime,
		ProviderID:    req.BarberID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.cfg.Payments.Checkout(r.Context(), payments.CheckoutRequest{
		AppointmentID: req.AppointmentID,
		Provider:      req.Provider,
		AmountCents:   req.AmountCents,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}
