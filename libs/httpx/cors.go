package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what cross-origin browsers may do. An empty AllowedOrigins
// disables CORS handling; "*" admits any origin.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

// PublicAPIPolicy allows the browser booking widget and the admin panel to call
// the API from the given origins.
func PublicAPIPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Webhook-Token", RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

func (p CORSPolicy) allowOrigin(origin string) (string, bool) {
	if slices.Contains(p.AllowedOrigins, "*") {
		return "*", true
	}
	for _, o := range p.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(o), origin) {
			return origin, true
		}
	}
	return "", false
}

// WithCORS answers preflights and decorates responses for admitted origins.
// Requests from other origins pass through without CORS headers.
func WithCORS(p CORSPolicy) Middleware {
	if len(p.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	fixed := http.Header{}
	fixed.Set("Access-Control-Allow-Methods", strings.Join(p.AllowedMethods, ", "))
	fixed.Set("Access-Control-Allow-Headers", strings.Join(p.AllowedHeaders, ", "))
	if p.MaxAge > 0 {
		fixed.Set("Access-Control-Max-Age", strconv.Itoa(int(p.MaxAge.Seconds())))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed, ok := p.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			for k, v := range fixed {
				h[k] = v
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
