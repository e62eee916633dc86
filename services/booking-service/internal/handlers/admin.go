package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/projectbarber/barber/libs/auth"
	"github.com/projectbarber/barber/libs/httpx"
	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	if req.Username == "" || req.Password == "" {
		h.fail(w, r, apperr.Validation("username and password are required"))
		return
	}

	userOK := h.cfg.AdminUser != "" && subtle.ConstantTimeCompare([]byte(h.cfg.AdminUser), []byte(req.Username)) == 1
	passOK := auth.CheckPassword(h.cfg.AdminPassword, req.Password)
	if !userOK || !passOK {
		h.logger.WarnContext(r.Context(), "admin login rejected", "username", req.Username)
		h.fail(w, r, apperr.Auth("Invalid credentials"))
		return
	}
	if h.cfg.Signer == nil {
		h.fail(w, r, apperr.Internal("issue admin token", errNoSigner))
		return
	}

	token, exp, err := h.cfg.Signer.Issue(auth.Claims{Role: auth.RoleAdmin, Username: req.Username}, h.cfg.TokenTTL)
	if err != nil {
		h.fail(w, r, apperr.Internal("issue admin token", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": exp.Format(time.RFC3339),
	})
}

// requireAdmin admits bearer tokens carrying role=admin.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.fail(w, r, apperr.Auth("Missing admin token"))
			return
		}
		if h.cfg.Signer == nil {
			h.fail(w, r, apperr.Auth("Invalid or expired admin token"))
			return
		}
		claims, err := h.cfg.Signer.Verify(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil || claims.Role != auth.RoleAdmin {
			h.fail(w, r, apperr.Auth("Invalid or expired admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	views, err := h.cfg.Booking.Appointments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": views})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cfg.Booking.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.cfg.Booking.UpdateStatus(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}
